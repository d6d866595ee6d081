package anatomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/posetrace/internal/pose"
)

func leg(frameID int, kneeY, ankleY, ankleVis float64) pose.FrameResult {
	f := pose.NewMissingFrame(frameID)
	f.Samples[pose.LeftHip] = pose.Sample{ID: pose.LeftHip, X: 0.55, Y: 0.55, Visibility: 0.9, Status: pose.StatusDetected}
	f.Samples[pose.LeftKnee] = pose.Sample{ID: pose.LeftKnee, X: 0.55, Y: kneeY, Visibility: 0.9, Status: pose.StatusDetected}
	f.Samples[pose.LeftAnkle] = pose.Sample{ID: pose.LeftAnkle, X: 0.55, Y: ankleY, Visibility: ankleVis, Status: pose.StatusDetected}
	return f
}

func boneIndex(t *testing.T, parent, child pose.LandmarkID) int {
	t.Helper()
	for i, b := range pose.Bones {
		if b.Parent == parent && b.Child == child {
			return i
		}
	}
	t.Fatalf("no bone %s-%s", parent, child)
	return -1
}

func TestProjector_FirstFrameUntouched(t *testing.T) {
	p := NewProjector(DefaultConfig())
	in := leg(0, 0.7, 0.95, 0.9)

	out := p.Apply(in)
	assert.Equal(t, in, out)

	m, ok := p.Median(boneIndex(t, pose.LeftKnee, pose.LeftAnkle))
	require.True(t, ok)
	assert.InDelta(t, 0.25, m, 1e-9)
}

func TestProjector_StretchedBoneIsProjected(t *testing.T) {
	p := NewProjector(DefaultConfig())
	for i := 0; i < 3; i++ {
		p.Apply(leg(i, 0.7, 0.85, 0.9))
	}

	// ankle jumps far below the knee with low visibility
	in := leg(3, 0.7, 1.0, 0.3)
	in.Samples[pose.LeftAnkle].X = 0.75
	out := p.Apply(in)

	knee := out.Samples[pose.LeftKnee]
	ankle := out.Samples[pose.LeftAnkle]
	assert.Equal(t, in.Samples[pose.LeftKnee], knee, "higher-visibility endpoint must not move")
	assert.InDelta(t, 0.15, pose.Distance(knee, ankle), 1e-9)
	assert.Equal(t, in.Samples[pose.LeftAnkle].Visibility, ankle.Visibility)
	assert.Equal(t, 1.0, in.Samples[pose.LeftAnkle].Y, "input must not change")
}

func TestProjector_LowerVisibilityParentMoves(t *testing.T) {
	p := NewProjector(DefaultConfig())
	for i := 0; i < 3; i++ {
		p.Apply(leg(i, 0.7, 0.85, 0.9))
	}

	in := leg(3, 0.75, 0.85, 0.95)
	in.Samples[pose.LeftKnee].Visibility = 0.2
	in.Samples[pose.LeftKnee].Y = 0.45
	out := p.Apply(in)

	assert.Equal(t, in.Samples[pose.LeftAnkle], out.Samples[pose.LeftAnkle])
	assert.InDelta(t, 0.15, pose.Distance(out.Samples[pose.LeftKnee], out.Samples[pose.LeftAnkle]), 1e-9)
}

func TestProjector_WithinBandIsLeftAlone(t *testing.T) {
	p := NewProjector(DefaultConfig())
	p.Apply(leg(0, 0.7, 0.85, 0.9))

	in := leg(1, 0.7, 0.87, 0.3)
	out := p.Apply(in)
	assert.Equal(t, in, out)
}

func TestProjector_CoincidentEndpointsUseLastDirection(t *testing.T) {
	p := NewProjector(DefaultConfig())
	p.Apply(leg(0, 0.7, 0.85, 0.9))

	out := p.Apply(leg(1, 0.7, 0.7, 0.2))
	ankle := out.Samples[pose.LeftAnkle]
	assert.InDelta(t, 0.55, ankle.X, 1e-9)
	assert.InDelta(t, 0.85, ankle.Y, 1e-9)
}

func TestProjector_HistoryIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.History = 2
	p := NewProjector(cfg)
	idx := boneIndex(t, pose.LeftKnee, pose.LeftAnkle)

	p.Apply(leg(0, 0.7, 0.85, 0.9))
	p.Apply(leg(1, 0.7, 0.87, 0.9))
	p.Apply(leg(2, 0.7, 0.89, 0.9))

	// lower median of the two most recent lengths
	m, _ := p.Median(idx)
	assert.InDelta(t, 0.17, m, 1e-9)
	assert.Len(t, p.lengths[idx], 2)
}

func TestProjector_LowConfidenceLengthsNotRecorded(t *testing.T) {
	p := NewProjector(DefaultConfig())
	p.Apply(leg(0, 0.7, 0.85, 0.3))

	_, ok := p.Median(boneIndex(t, pose.LeftKnee, pose.LeftAnkle))
	assert.False(t, ok)

	p.Reset()
	_, ok = p.Median(boneIndex(t, pose.LeftHip, pose.LeftKnee))
	assert.False(t, ok)
}

func TestProjector_BoneLengthStability(t *testing.T) {
	p := NewProjector(DefaultConfig())
	idx := boneIndex(t, pose.LeftKnee, pose.LeftAnkle)

	ankleY := []float64{0.85, 0.86, 1.0, 0.75, 0.84, 0.99, 0.85}
	for i, y := range ankleY {
		median, hasHistory := p.Median(idx)
		out := p.Apply(leg(i, 0.7, y, 0.3))
		if !hasHistory {
			// low visibility ankle never enters history; seed it once
			p.Apply(leg(i, 0.7, 0.85, 0.9))
			continue
		}
		ratio := pose.Distance(out.Samples[pose.LeftKnee], out.Samples[pose.LeftAnkle]) / median
		assert.GreaterOrEqual(t, ratio, 0.7-1e-9, "frame %d", i)
		assert.LessOrEqual(t, ratio, 1.3+1e-9, "frame %d", i)
	}
}
