// Package interp fills short low-confidence gaps in landmark trajectories by
// linear interpolation between trusted anchor frames.
package interp

import (
	"github.com/ayusman/posetrace/internal/pose"
)

// Config holds the interpolation tunables.
type Config struct {
	// AnchorThreshold is the visibility an anchor must exceed. Samples at or
	// below it are candidates for filling.
	AnchorThreshold float64
	// MaxGapFrames bounds the frame distance searched for anchors on each
	// side.
	MaxGapFrames int
	// InterpolatedVisibility is reported for filled samples.
	InterpolatedVisibility float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		AnchorThreshold:        0.6,
		MaxGapFrames:           5,
		InterpolatedVisibility: 0.45,
	}
}

// Interpolator fills gaps in a finished sequence. It holds no state between
// calls.
type Interpolator struct {
	config Config
}

// NewInterpolator creates an Interpolator.
func NewInterpolator(config Config) *Interpolator {
	return &Interpolator{config: config}
}

// Fill returns a new sequence with gaps filled. Frames must be ordered by
// id. Samples with a one-sided anchor, or none within MaxGapFrames, are
// left as they are. Running Fill on its own output changes nothing.
func (in *Interpolator) Fill(seq pose.Sequence) pose.Sequence {
	out := pose.Sequence{Frames: make([]pose.FrameResult, len(seq.Frames))}
	copy(out.Frames, seq.Frames)

	for id := pose.LandmarkID(0); id < pose.NumLandmarks; id++ {
		for i := range seq.Frames {
			s := seq.Frames[i].Samples[id]
			if !in.fillable(s) {
				continue
			}

			before, ok := in.anchor(seq, id, i, -1)
			if !ok {
				continue
			}
			after, ok := in.anchor(seq, id, i, +1)
			if !ok {
				continue
			}

			out.Frames[i].Samples[id] = in.between(seq, id, before, i, after)
		}
	}

	return out
}

// fillable reports whether s may be replaced by an interpolated value.
func (in *Interpolator) fillable(s pose.Sample) bool {
	switch s.Status {
	case pose.StatusPredicted, pose.StatusRawLowConfidence, pose.StatusMissing, "":
	default:
		return false
	}
	return !s.Present() || s.Visibility <= in.config.AnchorThreshold
}

func (in *Interpolator) isAnchor(s pose.Sample) bool {
	return s.Present() && s.Status != pose.StatusInterpolated && s.Visibility > in.config.AnchorThreshold
}

// anchor searches from frame index i in direction dir for the nearest anchor
// within MaxGapFrames frame ids.
func (in *Interpolator) anchor(seq pose.Sequence, id pose.LandmarkID, i, dir int) (int, bool) {
	origin := seq.Frames[i].FrameID
	for j := i + dir; j >= 0 && j < len(seq.Frames); j += dir {
		dist := seq.Frames[j].FrameID - origin
		if dist < 0 {
			dist = -dist
		}
		if dist > in.config.MaxGapFrames {
			return 0, false
		}
		if in.isAnchor(seq.Frames[j].Samples[id]) {
			return j, true
		}
	}
	return 0, false
}

func (in *Interpolator) between(seq pose.Sequence, id pose.LandmarkID, before, i, after int) pose.Sample {
	a := seq.Frames[before].Samples[id]
	b := seq.Frames[after].Samples[id]
	fa := seq.Frames[before].FrameID
	fb := seq.Frames[after].FrameID

	t := float64(seq.Frames[i].FrameID-fa) / float64(fb-fa)

	s := pose.Sample{
		ID:         id,
		X:          a.X + t*(b.X-a.X),
		Y:          a.Y + t*(b.Y-a.Y),
		Z:          a.Z + t*(b.Z-a.Z),
		Visibility: in.config.InterpolatedVisibility,
		Status:     pose.StatusInterpolated,
		Source:     seq.Frames[i].Samples[id].Source,
	}
	return pose.ClampSample(s)
}
