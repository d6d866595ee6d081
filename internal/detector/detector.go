// Package detector is the boundary to the single-frame pose estimator.
package detector

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrUnavailable means the estimator cannot be started or reached at all.
// It is fatal for a run.
var ErrUnavailable = errors.New("pose detector unavailable")

// Landmark is one estimated joint in frame-normalized coordinates. The
// slice returned by Detect is indexed by landmark id.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
	// Absent marks a slot the estimator returned without a usable value. It
	// keeps later landmarks at their ids.
	Absent     bool    `json:"-"`
}

// Detector defines the interface for single-frame pose estimators.
type Detector interface {
	// Detect estimates the pose in frame. Returns an empty slice if no person
	// is found with at least minConfidence.
	Detect(frame *gocv.Mat, minConfidence float64) ([]Landmark, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Aborter is implemented by detectors whose in-flight Detect call can be
// interrupted from another goroutine. The interrupted call returns an error.
type Aborter interface {
	Abort()
}

// ErrAborted is returned by a Detect call interrupted by Abort.
var ErrAborted = errors.New("detection aborted")

// Config holds configuration options for pose detection.
type Config struct {
	// ModelComplexity selects the MediaPipe pose model (0, 1 or 2).
	ModelComplexity int

	// MinConfidence is the default detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// IdleTimeout shuts the subprocess down after this long without calls.
	IdleTimeout time.Duration

	// ScriptPath overrides the service script lookup when set.
	ScriptPath string

	// Python overrides the interpreter lookup when set.
	Python string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelComplexity: 2,
		MinConfidence:   0.5,
		IdleTimeout:     30 * time.Second,
	}
}
