// Package temporal smooths each landmark's trajectory with its own Kalman
// filter and decides how far each output value can be trusted.
package temporal

import (
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/posetrace/internal/pose"
)

// Config holds the filter bank tunables.
type Config struct {
	// ColdStartFrames is the number of updates a filter needs before its
	// estimate replaces raw measurements.
	ColdStartFrames int
	// MinPredictionConfidence is the visibility floor below which a
	// measurement is not folded into the filter.
	MinPredictionConfidence float64
	// TrustThreshold is the visibility from which a measurement counts as
	// detected.
	TrustThreshold float64
	// MaxPositionChange bounds how far a pure prediction may move from the
	// previous accepted position.
	MaxPositionChange float64
	// MaxPredictFrames bounds how many consecutive frames a filter may coast
	// on predictions alone. Past it the landmark is reported unrecovered.
	// Zero means no bound.
	MaxPredictFrames int

	MaxInnovation float64
	MaxVelocity   float64

	ProcessNoisePos         float64
	ProcessNoiseVel         float64
	MeasurementNoise        float64
	InitialVelocityVariance float64

	// VisibilityBoost is added to trusted measurements corroborated by the filter.
	VisibilityBoost float64
	// MidVisibilityCap caps visibility reported for mid-band measurements.
	MidVisibilityCap float64
	// PredictedVisibility is reported for pure predictions.
	PredictedVisibility float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ColdStartFrames:         3,
		MinPredictionConfidence: 0.15,
		TrustThreshold:          0.5,
		MaxPositionChange:       0.15,
		MaxPredictFrames:        5,
		MaxInnovation:           0.2,
		MaxVelocity:             0.1,
		ProcessNoisePos:         1e-4,
		ProcessNoiseVel:         1e-4,
		MeasurementNoise:        1e-3,
		InitialVelocityVariance: 1e-2,
		VisibilityBoost:         0.15,
		MidVisibilityCap:        0.5,
		PredictedVisibility:     0.4,
	}
}

// filterState is one landmark's filter. A nil kalman means uninitialized.
type filterState struct {
	kf      *kalman
	updates int
	// consecutive frames emitted from prediction alone
	coasted int

	// last accepted output position
	lastX, lastY, lastZ float64
	hasLast             bool
}

// Bank runs one filter per landmark id. It is owned by a single video run
// and is not safe for concurrent use.
type Bank struct {
	config  Config
	filters [pose.NumLandmarks]filterState
}

// NewBank creates a Bank with all filters uninitialized.
func NewBank(config Config) *Bank {
	return &Bank{config: config}
}

// Reset clears every filter for a new video.
func (b *Bank) Reset() {
	b.filters = [pose.NumLandmarks]filterState{}
}

// Updates returns how many measurements the filter for id has absorbed.
func (b *Bank) Updates(id pose.LandmarkID) int {
	if !id.Valid() {
		return 0
	}
	return b.filters[id].updates
}

// Process filters one frame. It returns a new frame; the input is not
// modified. Frames must be passed in increasing id order.
func (b *Bank) Process(frame pose.FrameResult) pose.FrameResult {
	out := frame
	for i := range frame.Samples {
		out.Samples[i] = b.step(&b.filters[i], frame.Samples[i], pose.LandmarkID(i), frame.FrameID)
	}
	return out
}

func (b *Bank) step(f *filterState, s pose.Sample, id pose.LandmarkID, frameID int) pose.Sample {
	s.ID = id
	present := s.Present() && isFinite(s.X) && isFinite(s.Y)
	v := 0.0
	if present {
		v = s.Visibility
	}

	if f.kf == nil {
		if present && v > b.config.MinPredictionConfidence {
			f.kf = newKalman(b.config, s.X, s.Y, v)
			f.updates = 1
			return b.accept(f, b.coldStart(s))
		}
		return rawLowConfidence(s, present)
	}

	if present && v >= b.config.MinPredictionConfidence {
		f.coasted = 0
		warm := f.updates >= b.config.ColdStartFrames
		if !f.kf.predict() || !f.kf.update(s.X, s.Y, v) {
			log.WithFields(log.Fields{"frame": frameID, "landmark": id}).Warn("filter diverged, resetting")
			f.kf = newKalman(b.config, s.X, s.Y, v)
			f.updates = 1
			return b.accept(f, b.coldStart(s))
		}
		f.updates++

		if !warm {
			return b.accept(f, b.coldStart(s))
		}

		fx, fy := f.kf.position()
		if v >= b.config.TrustThreshold {
			s.X = v*s.X + (1-v)*fx
			s.Y = v*s.Y + (1-v)*fy
			s.Visibility = math.Min(v+b.config.VisibilityBoost, 1)
			s.Status = pose.StatusDetected
			return b.accept(f, s)
		}

		w := v / 2
		s.X = w*s.X + (1-w)*fx
		s.Y = w*s.Y + (1-w)*fy
		s.Visibility = math.Min(v, b.config.MidVisibilityCap)
		s.Status = pose.StatusPredicted
		return b.accept(f, s)
	}

	if f.updates < b.config.ColdStartFrames {
		return rawLowConfidence(s, present)
	}

	if b.config.MaxPredictFrames > 0 && f.coasted >= b.config.MaxPredictFrames {
		return rawLowConfidence(s, present)
	}

	// predict only; keep the old state if the jump is implausible
	saved := f.kf.save()
	if !f.kf.predict() {
		f.kf.restore(saved)
		return rawLowConfidence(s, present)
	}
	px, py := f.kf.position()
	if f.hasLast && math.Hypot(px-f.lastX, py-f.lastY) > b.config.MaxPositionChange {
		f.kf.restore(saved)
		return rawLowConfidence(s, present)
	}

	f.coasted++
	z := f.lastZ
	if present {
		z = s.Z
	}
	return b.accept(f, pose.Sample{
		ID:         id,
		X:          px,
		Y:          py,
		Z:          z,
		Visibility: b.config.PredictedVisibility,
		Status:     pose.StatusPredicted,
		Source:     s.Source,
	})
}

// coldStart emits the raw measurement while the filter warms up.
func (b *Bank) coldStart(s pose.Sample) pose.Sample {
	if s.Visibility >= b.config.TrustThreshold {
		s.Status = pose.StatusDetected
		return s
	}
	s.Status = pose.StatusPredicted
	s.Visibility = math.Min(s.Visibility, b.config.MidVisibilityCap)
	return s
}

// accept clamps s to its box and records it as the last accepted position.
func (b *Bank) accept(f *filterState, s pose.Sample) pose.Sample {
	s = pose.ClampSample(s)
	f.lastX, f.lastY, f.lastZ = s.X, s.Y, s.Z
	f.hasLast = true
	return s
}

func rawLowConfidence(s pose.Sample, present bool) pose.Sample {
	if !present {
		return pose.MissingSample(s.ID)
	}
	s.Status = pose.StatusRawLowConfidence
	return pose.ClampSample(s)
}
