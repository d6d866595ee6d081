// Package quality scores how plausible one full landmark set is.
package quality

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/posetrace/internal/pose"
)

// Config holds the component weights and anatomical thresholds. Weights are
// fixed for a Scorer's lifetime.
type Config struct {
	VisibilityWeight float64
	AnatomyWeight    float64
	TemporalWeight   float64
	SymmetryWeight   float64

	// VisibilityRegion selects the joints averaged for the visibility component.
	VisibilityRegion pose.Region
	// SymmetryRegion selects the limb pairs compared for symmetry.
	SymmetryRegion pose.Region
	// RequiredRegion, when set, halves the score if its mean visibility is
	// below RequiredFloor.
	RequiredRegion pose.Region
	RequiredFloor  float64

	TiltThreshold    float64
	MinShoulderWidth float64
	MaxShoulderWidth float64
	NoseBelowHip     float64
	ViolationFactor  float64

	// MovementCeiling is the per-frame displacement tolerated without penalty.
	MovementCeiling float64
	// TemporalMinVisibility is the visibility both frames need for a joint
	// to count towards continuity.
	TemporalMinVisibility float64

	GoodAbove     float64
	ModerateAbove float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		VisibilityWeight:      0.4,
		AnatomyWeight:         0.3,
		TemporalWeight:        0.2,
		SymmetryWeight:        0.1,
		VisibilityRegion:      pose.RegionAll,
		SymmetryRegion:        pose.RegionAll,
		RequiredRegion:        pose.RegionLegs,
		RequiredFloor:         0.3,
		TiltThreshold:         0.2,
		MinShoulderWidth:      0.05,
		MaxShoulderWidth:      0.5,
		NoseBelowHip:          0.12,
		ViolationFactor:       0.5,
		MovementCeiling:       0.2,
		TemporalMinVisibility: 0.5,
		GoodAbove:             0.7,
		ModerateAbove:         0.5,
	}
}

// Scorer computes composite plausibility scores. It holds no mutable state
// and is safe for concurrent use.
type Scorer struct {
	config Config
}

// NewScorer creates a Scorer.
func NewScorer(config Config) *Scorer {
	return &Scorer{config: config}
}

// Components is the per-component breakdown of a score. Temporal is NaN when
// no previous frame was available.
type Components struct {
	Visibility float64
	Anatomy    float64
	Temporal   float64
	Symmetry   float64
	Violations int
}

// Score rates det, optionally against the previous frame result. The input
// is not modified.
func (s *Scorer) Score(det pose.FrameDetection, prev *pose.FrameResult) pose.ScoredDetection {
	score, label, _ := s.Explain(det, prev)
	return pose.ScoredDetection{FrameDetection: det, Score: score, Label: label}
}

// Explain is Score with the component breakdown.
func (s *Scorer) Explain(det pose.FrameDetection, prev *pose.FrameResult) (float64, string, Components) {
	c := Components{Temporal: math.NaN()}
	if len(det.Samples) == 0 {
		return 0, pose.LabelMissingDetection, c
	}

	idx := index(det)

	c.Visibility = meanVisibility(idx, s.config.VisibilityRegion.IDs())
	c.Anatomy, c.Violations = s.anatomy(idx)
	c.Symmetry = symmetry(idx, s.config.SymmetryRegion)

	total := s.config.VisibilityWeight*c.Visibility +
		s.config.AnatomyWeight*c.Anatomy +
		s.config.SymmetryWeight*c.Symmetry
	weights := s.config.VisibilityWeight + s.config.AnatomyWeight + s.config.SymmetryWeight

	if prev != nil {
		if t, ok := s.temporal(idx, prev); ok {
			c.Temporal = t
			total += s.config.TemporalWeight * t
			weights += s.config.TemporalWeight
		}
	}

	score := 0.0
	if weights > 0 {
		score = total / weights
	}

	if s.config.RequiredRegion != "" {
		if meanVisibility(idx, s.config.RequiredRegion.IDs()) < s.config.RequiredFloor {
			return score * 0.5, pose.MissingRegionLabel(s.config.RequiredRegion), c
		}
	}

	return score, s.label(score), c
}

func (s *Scorer) label(score float64) string {
	switch {
	case score >= s.config.GoodAbove:
		return pose.LabelGood
	case score >= s.config.ModerateAbove:
		return pose.LabelModerate
	}
	return pose.LabelPoor
}

// anatomy multiplies by ViolationFactor for every failed check. Checks whose
// joints are absent are skipped.
func (s *Scorer) anatomy(idx map[pose.LandmarkID]pose.Sample) (float64, int) {
	violations := 0

	ls, okLS := idx[pose.LeftShoulder]
	rs, okRS := idx[pose.RightShoulder]
	lh, okLH := idx[pose.LeftHip]
	rh, okRH := idx[pose.RightHip]

	if okLS && okRS {
		if math.Abs(ls.Y-rs.Y) > s.config.TiltThreshold {
			violations++
		}
		w := pose.Distance(ls, rs)
		if w < s.config.MinShoulderWidth || w > s.config.MaxShoulderWidth {
			violations++
		}
	}
	if okLH && okRH {
		if math.Abs(lh.Y-rh.Y) > s.config.TiltThreshold {
			violations++
		}
		if nose, ok := idx[pose.Nose]; ok {
			hipMid := (lh.Y + rh.Y) / 2
			if nose.Y > hipMid+s.config.NoseBelowHip {
				violations++
			}
		}
	}

	return math.Pow(s.config.ViolationFactor, float64(violations)), violations
}

// temporal is 1 while the largest joint displacement stays under the
// movement ceiling and falls linearly to 0 at twice the ceiling.
func (s *Scorer) temporal(idx map[pose.LandmarkID]pose.Sample, prev *pose.FrameResult) (float64, bool) {
	maxMove := 0.0
	compared := 0
	for id, cur := range idx {
		p := prev.Samples[id]
		if !p.Present() {
			continue
		}
		if cur.Visibility < s.config.TemporalMinVisibility || p.Visibility < s.config.TemporalMinVisibility {
			continue
		}
		compared++
		if d := pose.Distance(cur, p); d > maxMove {
			maxMove = d
		}
	}
	if compared == 0 {
		return 0, false
	}

	ceiling := s.config.MovementCeiling
	if ceiling <= 0 || maxMove <= ceiling {
		return 1, true
	}
	return math.Max(0, 1-(maxMove-ceiling)/ceiling), true
}

// symmetry is the min/max ratio of left and right mean visibility.
func symmetry(idx map[pose.LandmarkID]pose.Sample, region pose.Region) float64 {
	pairs := pose.LimbPairs(region)
	left := make([]float64, len(pairs))
	right := make([]float64, len(pairs))
	for i, p := range pairs {
		left[i] = idx[p.Left].Visibility
		right[i] = idx[p.Right].Visibility
	}

	l, r := stat.Mean(left, nil), stat.Mean(right, nil)
	hi := math.Max(l, r)
	if hi == 0 {
		return 0
	}
	return math.Min(l, r) / hi
}

// meanVisibility averages over ids; absent joints count as zero.
func meanVisibility(idx map[pose.LandmarkID]pose.Sample, ids []pose.LandmarkID) float64 {
	if len(ids) == 0 {
		return 0
	}
	vis := make([]float64, len(ids))
	for i, id := range ids {
		vis[i] = clamp01(idx[id].Visibility)
	}
	return stat.Mean(vis, nil)
}

func index(det pose.FrameDetection) map[pose.LandmarkID]pose.Sample {
	idx := make(map[pose.LandmarkID]pose.Sample, len(det.Samples))
	for _, s := range det.Samples {
		if !s.ID.Valid() {
			continue
		}
		if _, dup := idx[s.ID]; !dup {
			idx[s.ID] = s
		}
	}
	return idx
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
