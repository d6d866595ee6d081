// Package anatomy keeps bone lengths consistent across frames.
package anatomy

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/posetrace/internal/pose"
)

// Config holds the projector tunables.
type Config struct {
	// History is the number of accepted lengths kept per bone.
	History int
	// MinRatio and MaxRatio bound current length over median length.
	MinRatio float64
	MaxRatio float64
	// TrustThreshold is the visibility both endpoints need for a length to
	// enter the history.
	TrustThreshold float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		History:        5,
		MinRatio:       0.7,
		MaxRatio:       1.3,
		TrustThreshold: 0.5,
	}
}

// Projector pulls implausibly stretched or shrunk bones back to their recent
// median length. It is owned by a single video run.
type Projector struct {
	config  Config
	lengths [][]float64
	// last unit direction parent->child, used when both endpoints coincide
	dirs [][2]float64
}

// NewProjector creates a Projector with empty history.
func NewProjector(config Config) *Projector {
	if config.History < 1 {
		config.History = 1
	}
	p := &Projector{config: config}
	p.Reset()
	return p
}

// Reset clears the bone history for a new video.
func (p *Projector) Reset() {
	p.lengths = make([][]float64, len(pose.Bones))
	p.dirs = make([][2]float64, len(pose.Bones))
	for i := range p.dirs {
		p.dirs[i] = [2]float64{0, 1}
	}
}

// Median returns the median historical length of bone i and whether any
// history exists. Even-sized histories yield the lower middle value.
func (p *Projector) Median(i int) (float64, bool) {
	if i < 0 || i >= len(p.lengths) || len(p.lengths[i]) == 0 {
		return 0, false
	}
	sorted := append([]float64(nil), p.lengths[i]...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil), true
}

// Apply returns a copy of frame with out-of-band bones projected. Bones are
// visited in pose.Bones order so a moved joint is settled before its
// children are checked. Only the lower-visibility endpoint moves.
func (p *Projector) Apply(frame pose.FrameResult) pose.FrameResult {
	out := frame

	for i, bone := range pose.Bones {
		a, b := out.Samples[bone.Parent], out.Samples[bone.Child]
		if !a.Present() || !b.Present() {
			continue
		}
		median, ok := p.Median(i)
		if !ok || median <= 0 {
			continue
		}

		length := pose.Distance(a, b)
		ratio := length / median
		if ratio >= p.config.MinRatio && ratio <= p.config.MaxRatio {
			continue
		}

		anchor, moved := a, b
		dx, dy := b.X-a.X, b.Y-a.Y
		if b.Visibility > a.Visibility {
			anchor, moved = b, a
			dx, dy = -dx, -dy
		}

		ux, uy := p.dirs[i][0], p.dirs[i][1]
		if anchor.ID == bone.Child {
			ux, uy = -ux, -uy
		}
		if length > 1e-9 {
			ux, uy = dx/length, dy/length
		}

		moved.X = anchor.X + ux*median
		moved.Y = anchor.Y + uy*median
		out.Samples[moved.ID] = pose.ClampSample(moved)
	}

	p.record(out)
	return out
}

// record appends the lengths of trusted bones to the rolling history.
func (p *Projector) record(frame pose.FrameResult) {
	for i, bone := range pose.Bones {
		a, b := frame.Samples[bone.Parent], frame.Samples[bone.Child]
		if !a.Present() || !b.Present() {
			continue
		}
		if a.Visibility < p.config.TrustThreshold || b.Visibility < p.config.TrustThreshold {
			continue
		}
		length := pose.Distance(a, b)
		if length <= 1e-9 || math.IsNaN(length) {
			continue
		}

		p.dirs[i] = [2]float64{(b.X - a.X) / length, (b.Y - a.Y) / length}
		h := append(p.lengths[i], length)
		if len(h) > p.config.History {
			h = h[len(h)-p.config.History:]
		}
		p.lengths[i] = h
	}
}
