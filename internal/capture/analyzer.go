package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Analysis constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
)

// AnalyzerConfig holds the thresholds that turn frame statistics into hints.
type AnalyzerConfig struct {
	// DarkBelow is the mean gray level (0-255) under which a frame is dark.
	DarkBelow float64
	// LowContrastBelow is the gray standard deviation under which a frame is flat.
	LowContrastBelow float64
	// MotionPercent is the percentage of changed pixels that counts as high motion.
	MotionPercent float64
}

// DefaultAnalyzerConfig returns the thresholds used when none are configured.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		DarkBelow:        60,
		LowContrastBelow: 25,
		MotionPercent:    20,
	}
}

// Hint describes what makes a frame hard for the estimator.
type Hint struct {
	Dark          bool
	LowContrast   bool
	HighMotion    bool
	Brightness    float64
	Contrast      float64
	ChangePercent float64
}

// Any reports whether any difficulty was detected.
func (h Hint) Any() bool {
	return h.Dark || h.LowContrast || h.HighMotion
}

// FrameAnalyzer measures brightness, contrast and motion between consecutive
// frames. Motion uses frame differencing with Gaussian blur for noise
// reduction.
type FrameAnalyzer struct {
	config      AnalyzerConfig
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewFrameAnalyzer creates a FrameAnalyzer with the given thresholds.
func NewFrameAnalyzer(config AnalyzerConfig) *FrameAnalyzer {
	return &FrameAnalyzer{
		config:   config,
		prevGray: gocv.NewMat(),
	}
}

// Analyze computes the hint for frame and remembers it as the motion
// baseline for the next call. Empty frames yield a zero hint.
//
// Algorithm:
// 1. Convert frame to grayscale
// 2. Mean and standard deviation give brightness and contrast
// 3. Apply Gaussian blur (21x21) to reduce noise
// 4. If first frame, store as baseline and report no motion
// 5. Threshold the absolute difference with the previous frame (threshold=25)
// 6. Count non-zero pixels / total pixels = changePercent
func (a *FrameAnalyzer) Analyze(frame *gocv.Mat) Hint {
	a.mu.Lock()
	defer a.mu.Unlock()

	if frame == nil || frame.Empty() {
		return Hint{}
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(gray, &mean, &stddev)

	h := Hint{
		Brightness: mean.GetDoubleAt(0, 0),
		Contrast:   stddev.GetDoubleAt(0, 0),
	}
	h.Dark = h.Brightness < a.config.DarkBelow
	h.LowContrast = h.Contrast < a.config.LowContrastBelow

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !a.initialized || a.prevGray.Rows() != blurred.Rows() || a.prevGray.Cols() != blurred.Cols() {
		blurred.CopyTo(&a.prevGray)
		a.initialized = true
		return h
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, a.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	h.ChangePercent = float64(nonZero) / float64(totalPixels) * 100.0
	h.HighMotion = h.ChangePercent > a.config.MotionPercent

	blurred.CopyTo(&a.prevGray)

	return h
}

// Reset clears the motion baseline, allowing reuse for a new video.
func (a *FrameAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.prevGray.Empty() {
		a.prevGray.Close()
		a.prevGray = gocv.NewMat()
	}
	a.initialized = false
}

// Close releases resources used by the analyzer.
func (a *FrameAnalyzer) Close() {
	a.Reset()
}
