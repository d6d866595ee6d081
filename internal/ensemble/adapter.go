// Package ensemble runs a frame through several pre-processing strategies
// and keeps the most plausible landmark set.
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/posetrace/internal/detector"
	"github.com/ayusman/posetrace/internal/pose"
	"github.com/ayusman/posetrace/internal/strategy"
)

// ErrNoDetection means a strategy produced no usable landmark set. It is
// recovered by trying other strategies.
var ErrNoDetection = errors.New("no detection")

// DefaultOracleTimeout bounds a single estimator call.
const DefaultOracleTimeout = 10 * time.Second

// Oracle produces one detection for a frame under one strategy.
type Oracle interface {
	Detect(ctx context.Context, frame *gocv.Mat, frameID int, s strategy.Strategy) (*pose.FrameDetection, error)
}

// Adapter calls pooled detectors and normalizes their output into the
// canonical coordinate frame.
type Adapter struct {
	pool    *detector.Pool
	timeout time.Duration
}

// NewAdapter creates an Adapter. A non-positive timeout uses
// DefaultOracleTimeout.
func NewAdapter(pool *detector.Pool, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	return &Adapter{pool: pool, timeout: timeout}
}

type detectResult struct {
	landmarks []detector.Landmark
	err       error
}

// Detect transforms frame with s, runs the estimator and maps the landmarks
// back. It returns ErrNoDetection when nothing was found or the call timed
// out, and an error wrapping detector.ErrUnavailable when the estimator is
// gone.
func (a *Adapter) Detect(ctx context.Context, frame *gocv.Mat, frameID int, s strategy.Strategy) (*pose.FrameDetection, error) {
	var src gocv.Mat
	if frame != nil {
		src = *frame
	} else {
		src = gocv.NewMat()
		defer src.Close()
	}

	transformed, err := s.Apply(src)
	if err != nil {
		transformed.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoDetection, err)
	}

	// Waiting for a detector counts against the call's timeout, so a
	// detector stuck in an earlier call cannot stall the run.
	acquireCtx, cancel := context.WithTimeout(ctx, a.timeout)
	d, err := a.pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		transformed.Close()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			log.WithFields(log.Fields{"frame": frameID, "strategy": s.Name}).Warn("no detector free before timeout")
			return nil, fmt.Errorf("%w: no detector free after %s", ErrNoDetection, a.timeout)
		}
		return nil, err
	}

	// The goroutine owns the detector and the transformed frame until the
	// call returns, which an abort forces after a timeout.
	done := make(chan detectResult, 1)
	go func() {
		defer a.pool.Release(d)
		defer transformed.Close()
		lms, err := d.Detect(&transformed, s.MinConfidence)
		done <- detectResult{landmarks: lms, err: err}
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()

	var res detectResult
	select {
	case res = <-done:
	case <-timer.C:
		log.WithFields(log.Fields{"frame": frameID, "strategy": s.Name}).Warn("oracle call timed out")
		abort(d)
		return nil, fmt.Errorf("%w: timed out after %s", ErrNoDetection, a.timeout)
	case <-ctx.Done():
		abort(d)
		return nil, ctx.Err()
	}

	if res.err != nil {
		if errors.Is(res.err, detector.ErrUnavailable) {
			return nil, res.err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoDetection, res.err)
	}
	if len(res.landmarks) == 0 {
		return nil, ErrNoDetection
	}

	det := Normalize(res.landmarks, frameID, s)
	return &det, nil
}

func abort(d detector.Detector) {
	if ab, ok := d.(detector.Aborter); ok {
		ab.Abort()
	}
}

// Normalize converts raw estimator landmarks into samples in the original
// frame's coordinates. Mirrored strategies get x flipped and left/right ids
// swapped; rotated ones get both axes flipped. Absent or non-finite slots
// are skipped so their ids stay missing. New samples are always created.
func Normalize(landmarks []detector.Landmark, frameID int, s strategy.Strategy) pose.FrameDetection {
	g := s.Geometry()
	det := pose.FrameDetection{FrameID: frameID, Strategy: s.Name}

	for i, lm := range landmarks {
		id := pose.LandmarkID(i)
		if !id.Valid() {
			break
		}
		if lm.Absent || math.IsNaN(lm.X) || math.IsNaN(lm.Y) || math.IsInf(lm.X, 0) || math.IsInf(lm.Y, 0) {
			continue
		}
		x, y := lm.X, lm.Y
		if g.FlipX {
			x = 1 - x
		}
		if g.FlipY {
			y = 1 - y
		}
		if g.SwapSides {
			id = pose.Mirror(id)
		}
		det.Samples = append(det.Samples, pose.Sample{
			ID:         id,
			X:          x,
			Y:          y,
			Z:          lm.Z,
			Visibility: clampVisibility(lm.Visibility),
			Status:     pose.StatusDetected,
			Source:     s.Name,
		})
	}

	return det.Sorted()
}

func clampVisibility(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}
