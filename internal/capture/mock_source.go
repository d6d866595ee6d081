package capture

import (
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory frames for testing.
type MockSource struct {
	ids    []int
	frames []*gocv.Mat
	index  int
	mu     sync.Mutex
	closed bool
}

// NewMockSource creates a source yielding one frame per id. A nil frames
// slice, or a nil entry, yields an empty Mat for that id.
func NewMockSource(ids []int, frames []*gocv.Mat) *MockSource {
	return &MockSource{ids: ids, frames: frames}
}

// NewBlankSource yields n empty frames with ids 0..n-1.
func NewBlankSource(n int) *MockSource {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return NewMockSource(ids, nil)
}

func (s *MockSource) Next() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrSourceClosed
	}
	if s.index >= len(s.ids) {
		return Frame{}, io.EOF
	}

	// Clone the frame so the original isn't modified
	var mat gocv.Mat
	if s.index < len(s.frames) && s.frames[s.index] != nil {
		mat = s.frames[s.index].Clone()
	} else {
		mat = gocv.NewMat()
	}
	f := Frame{ID: s.ids[s.index], Mat: &mat}
	s.index++

	return f, nil
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Reset restarts playback from the beginning
func (s *MockSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = 0
	s.closed = false
}
