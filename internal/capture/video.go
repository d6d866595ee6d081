package capture

import (
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// VideoFile reads frames sequentially from a video file. Frame ids start at
// zero and count every decoded frame, including skipped ones.
type VideoFile struct {
	path    string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	next    int
	stride  int
	closed  bool
}

// OpenVideoFile opens path for decoding. A stride above 1 keeps only every
// stride-th frame; ids of kept frames are unchanged.
func OpenVideoFile(path string, stride int) (*VideoFile, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video %s: not readable", path)
	}
	if stride < 1 {
		stride = 1
	}

	return &VideoFile{
		path:    path,
		capture: capture,
		stride:  stride,
	}, nil
}

// Path returns the file being decoded.
func (v *VideoFile) Path() string {
	return v.path
}

// FPS returns the container's nominal frame rate.
func (v *VideoFile) FPS() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0
	}
	return v.capture.Get(gocv.VideoCaptureFPS)
}

// FrameCount returns the container's frame count estimate.
func (v *VideoFile) FrameCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return 0
	}
	return int(v.capture.Get(gocv.VideoCaptureFrameCount))
}

// Next decodes the next kept frame.
// The caller is responsible for closing the returned frame.
func (v *VideoFile) Next() (Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return Frame{}, ErrSourceClosed
	}

	mat := gocv.NewMat()
	for {
		if ok := v.capture.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			return Frame{}, io.EOF
		}
		id := v.next
		v.next++
		if id%v.stride == 0 {
			return Frame{ID: id, Mat: &mat}, nil
		}
	}
}

// Close releases the decoder.
func (v *VideoFile) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.capture.Close()
}
