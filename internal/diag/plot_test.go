package diag

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/posetrace/internal/pose"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func wristSequence() pose.Sequence {
	statuses := []pose.Status{
		pose.StatusDetected, pose.StatusDetected, pose.StatusPredicted, pose.StatusMissing,
		pose.StatusInterpolated, pose.StatusRawLowConfidence, pose.StatusDetected,
	}
	seq := pose.Sequence{}
	for i, st := range statuses {
		f := pose.NewMissingFrame(i)
		if st != pose.StatusMissing {
			f.Samples[pose.LeftWrist] = pose.Sample{
				ID: pose.LeftWrist, X: 0.6 + 0.01*float64(i), Y: 0.5, Visibility: 0.7, Status: st,
			}
		}
		seq.Frames = append(seq.Frames, f)
	}
	return seq
}

func TestPlotTrajectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wrist.png")

	require.NoError(t, PlotTrajectory(wristSequence(), pose.LeftWrist, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic), "output should be a PNG")
}

func TestPlotTrajectory_Errors(t *testing.T) {
	dir := t.TempDir()

	err := PlotTrajectory(wristSequence(), pose.Nose, filepath.Join(dir, "nose.png"))
	assert.ErrorIs(t, err, ErrNoSamples)

	err = PlotTrajectory(wristSequence(), pose.LandmarkID(40), filepath.Join(dir, "bad.png"))
	assert.Error(t, err)

	err = PlotTrajectory(wristSequence(), pose.LeftWrist, filepath.Join(dir, "missing", "dir", "w.png"))
	assert.Error(t, err)
}

func TestPlotAll_SkipsEmptyLandmarks(t *testing.T) {
	dir := t.TempDir()

	written, err := PlotAll(wristSequence(), []pose.LandmarkID{pose.Nose, pose.LeftWrist}, dir, "run_")
	require.NoError(t, err)
	require.Len(t, written, 1)
	assert.FileExists(t, written[0])
	assert.Contains(t, filepath.Base(written[0]), "run_15_")
}
