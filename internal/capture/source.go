// Package capture provides video frame sources and per-frame difficulty
// analysis using GoCV (OpenCV).
package capture

import (
	"errors"

	"gocv.io/x/gocv"
)

// ErrSourceClosed is returned when reading from a source that was closed.
var ErrSourceClosed = errors.New("frame source is closed")

// Frame is one decoded video frame. The receiver owns Mat and must close it.
type Frame struct {
	ID  int
	Mat *gocv.Mat
}

// Close releases the frame's pixel buffer.
func (f Frame) Close() {
	if f.Mat != nil {
		f.Mat.Close()
	}
}

// Source yields frames in increasing id order. Next returns io.EOF after the
// last frame.
type Source interface {
	Next() (Frame, error)
	Close() error
}
