package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Factory creates one detector instance.
type Factory func() (Detector, error)

// Pool hands out exclusively owned detectors. Instances are created up front
// so an unavailable estimator is reported before any video is read.
type Pool struct {
	free chan Detector
	all  []Detector

	mu     sync.Mutex
	closed bool
}

// NewPool creates size detectors with factory.
func NewPool(factory Factory, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}

	p := &Pool{free: make(chan Detector, size)}
	for i := 0; i < size; i++ {
		d, err := factory()
		if err != nil {
			p.Close()
			if errors.Is(err, ErrUnavailable) {
				return nil, err
			}
			return nil, fmt.Errorf("create detector %d: %v: %w", i, err, ErrUnavailable)
		}
		p.all = append(p.all, d)
		p.free <- d
	}
	return p, nil
}

// NewStaticPool wraps existing detectors, mainly for tests.
func NewStaticPool(detectors ...Detector) *Pool {
	p := &Pool{free: make(chan Detector, len(detectors))}
	for _, d := range detectors {
		p.all = append(p.all, d)
		p.free <- d
	}
	return p
}

// Size returns the number of detectors managed by the pool.
func (p *Pool) Size() int {
	return len(p.all)
}

// Acquire blocks until a detector is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (Detector, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool closed: %w", ErrUnavailable)
	}

	select {
	case d := <-p.free:
		return d, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns d to the pool.
func (p *Pool) Release(d Detector) {
	if d == nil {
		return
	}
	p.free <- d
}

// Close closes every detector. Detectors still checked out are closed too.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	idle := make(map[Detector]bool, len(p.all))
drain:
	for {
		select {
		case d := <-p.free:
			idle[d] = true
		default:
			break drain
		}
	}
	// A detector still checked out may be stuck in a call that holds its
	// own lock; interrupt it so Close does not wait on it.
	for _, d := range p.all {
		if ab, ok := d.(Aborter); ok && !idle[d] {
			ab.Abort()
		}
	}

	var errs []error
	for _, d := range p.all {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
