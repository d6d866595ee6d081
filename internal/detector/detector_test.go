package detector

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDetector(t *testing.T) {
	t.Run("returns empty landmarks by default", func(t *testing.T) {
		mock := NewMockDetector()

		lms, err := mock.Detect(nil, 0.5)

		require.NoError(t, err)
		assert.Empty(t, lms)
		assert.Equal(t, 1, mock.Calls())
	})

	t.Run("returns configured landmarks", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetLandmarks(StandingPose(0.9))

		lms, err := mock.Detect(nil, 0.5)

		require.NoError(t, err)
		assert.Len(t, lms, len(StandingPose(0.8)))
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()
		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		lms, err := mock.Detect(nil, 0.5)

		assert.Equal(t, expectedErr, err)
		assert.Nil(t, lms)
	})

	t.Run("abort interrupts a delayed call", func(t *testing.T) {
		mock := NewMockDetector()
		mock.Enqueue(Response{Landmarks: StandingPose(0.9), Delay: time.Hour})
		mock.SetLandmarks(StandingPose(0.8))

		done := make(chan error, 1)
		go func() {
			_, err := mock.Detect(nil, 0.5)
			done <- err
		}()
		require.Eventually(t, func() bool { return mock.Calls() == 1 }, time.Second, 5*time.Millisecond)

		mock.Abort()
		assert.ErrorIs(t, <-done, ErrAborted)

		lms, err := mock.Detect(nil, 0.5)
		require.NoError(t, err)
		assert.Len(t, lms, len(StandingPose(0.8)))
	})

	t.Run("queued responses come first in order", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetLandmarks(StandingPose(0.9))
		mock.Enqueue(Response{}, Response{Err: ErrUnavailable})

		lms, err := mock.Detect(nil, 0.3)
		require.NoError(t, err)
		assert.Empty(t, lms)

		_, err = mock.Detect(nil, 0.4)
		assert.ErrorIs(t, err, ErrUnavailable)

		lms, err = mock.Detect(nil, 0.5)
		require.NoError(t, err)
		assert.Len(t, lms, len(StandingPose(0.8)))

		assert.Equal(t, []float64{0.3, 0.4, 0.5}, mock.MinConfidences())
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetLandmarks(StandingPose(0.9))

		lms, _ := mock.Detect(nil, 0.5)
		lms[0].X = 42

		again, _ := mock.Detect(nil, 0.5)
		assert.Equal(t, 0.5, again[0].X)
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*MediaPipeDetector)(nil)
		var _ Aborter = (*MockDetector)(nil)
		var _ Aborter = (*MediaPipeDetector)(nil)
	})
}

func TestStandingPose(t *testing.T) {
	lms := StandingPose(0.8)

	t.Run("head above hips above feet", func(t *testing.T) {
		assert.Less(t, lms[0].Y, lms[23].Y)
		assert.Less(t, lms[23].Y, lms[27].Y)
	})

	t.Run("left side on image right", func(t *testing.T) {
		assert.Greater(t, lms[11].X, lms[12].X)
	})

	t.Run("visibility applied", func(t *testing.T) {
		for _, lm := range lms {
			assert.Equal(t, 0.8, lm.Visibility)
		}
	})
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    int
		absent  []int
		wantErr bool
	}{
		{"no person", `{"landmarks":[]}` + "\n", 0, nil, false},
		{"two landmarks", `{"landmarks":[{"x":0.1,"y":0.2,"z":0,"visibility":0.9},{"x":0.3,"y":0.4,"z":0,"visibility":0.5}]}`, 2, nil, false},
		{"null entry keeps later ids", `{"landmarks":[null,{"x":0.3,"y":0.4,"z":0,"visibility":0.5}]}`, 2, []int{0}, false},
		{"service error", `{"error":"model failed"}`, 0, nil, true},
		{"garbage", `not json`, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse([]byte(tt.line))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tt.want)

			for i, lm := range got {
				assert.Equal(t, slices.Contains(tt.absent, i), lm.Absent, "landmark %d", i)
			}
		})
	}

	t.Run("present values are kept", func(t *testing.T) {
		got, err := parseResponse([]byte(`{"landmarks":[null,{"x":0.3,"y":0.4,"z":0.1,"visibility":0.5}]}`))
		require.NoError(t, err)
		assert.Equal(t, Landmark{X: 0.3, Y: 0.4, Z: 0.1, Visibility: 0.5}, got[1])
	})
}

func TestNewMediaPipeDetector_MissingScript(t *testing.T) {
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())

	_, err := NewMediaPipeDetector(DefaultConfig())
	if err == nil {
		t.Skip("service script found next to test binary")
	}
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPool(t *testing.T) {
	t.Run("creates size detectors", func(t *testing.T) {
		created := 0
		p, err := NewPool(func() (Detector, error) {
			created++
			return NewMockDetector(), nil
		}, 3)
		require.NoError(t, err)
		defer p.Close()

		assert.Equal(t, 3, created)
		assert.Equal(t, 3, p.Size())
	})

	t.Run("factory failure is unavailable", func(t *testing.T) {
		first := NewMockDetector()
		calls := 0
		_, err := NewPool(func() (Detector, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("boom")
			}
			return first, nil
		}, 2)

		assert.ErrorIs(t, err, ErrUnavailable)
		assert.True(t, first.Closed())
	})

	t.Run("acquire blocks until release", func(t *testing.T) {
		d := NewMockDetector()
		p := NewStaticPool(d)

		got, err := p.Acquire(context.Background())
		require.NoError(t, err)
		assert.Same(t, d, got)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = p.Acquire(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		p.Release(got)
		got, err = p.Acquire(context.Background())
		require.NoError(t, err)
		assert.Same(t, d, got)
	})

	t.Run("close interrupts a busy detector", func(t *testing.T) {
		d := NewMockDetector()
		d.Enqueue(Response{Delay: time.Hour})
		p := NewStaticPool(d)

		got, err := p.Acquire(context.Background())
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := got.Detect(nil, 0.5)
			done <- err
		}()
		require.Eventually(t, func() bool { return d.Calls() == 1 }, time.Second, 5*time.Millisecond)

		require.NoError(t, p.Close())
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrAborted)
		case <-time.After(time.Second):
			t.Fatal("busy detector was not interrupted")
		}
		assert.Equal(t, 1, d.Aborts())
	})

	t.Run("close leaves idle detectors alone", func(t *testing.T) {
		d := NewMockDetector()
		p := NewStaticPool(d)
		require.NoError(t, p.Close())
		assert.Zero(t, d.Aborts())
	})

	t.Run("closed pool is unavailable", func(t *testing.T) {
		d := NewMockDetector()
		p := NewStaticPool(d)
		require.NoError(t, p.Close())

		assert.True(t, d.Closed())
		_, err := p.Acquire(context.Background())
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
