package detector

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Response is one scripted answer of the MockDetector.
type Response struct {
	Landmarks []Landmark
	Err       error
	// Delay blocks the call before answering, for timeout tests.
	Delay time.Duration
}

// MockDetector is a test implementation of the Detector interface.
// Queued responses are returned in call order; once the queue is drained
// the default response is returned.
type MockDetector struct {
	mu       sync.Mutex
	queue    []Response
	fallback Response
	calls    int
	minConfs []float64
	closed   bool
	aborts   int
	abortCh  chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{abortCh: make(chan struct{})}
}

// SetLandmarks sets the default landmarks returned by Detect.
func (m *MockDetector) SetLandmarks(landmarks []Landmark) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = Response{Landmarks: landmarks}
}

// SetError sets the default error returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = Response{Err: err}
}

// Enqueue appends scripted responses consumed one per Detect call.
func (m *MockDetector) Enqueue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MinConfidences returns the thresholds passed to Detect, in call order.
func (m *MockDetector) MinConfidences() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.minConfs...)
}

// Abort interrupts every delayed Detect call in flight.
func (m *MockDetector) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	if m.abortCh != nil {
		close(m.abortCh)
	}
	m.abortCh = make(chan struct{})
}

// Aborts returns how many times Abort has been called.
func (m *MockDetector) Aborts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborts
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the next scripted response.
func (m *MockDetector) Detect(frame *gocv.Mat, minConfidence float64) ([]Landmark, error) {
	m.mu.Lock()
	m.calls++
	m.minConfs = append(m.minConfs, minConfidence)
	resp := m.fallback
	if len(m.queue) > 0 {
		resp = m.queue[0]
		m.queue = m.queue[1:]
	}
	if m.abortCh == nil {
		m.abortCh = make(chan struct{})
	}
	aborted := m.abortCh
	m.mu.Unlock()

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-aborted:
			return nil, ErrAborted
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return append([]Landmark(nil), resp.Landmarks...), nil
}

// Close marks the mock closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// standingPose holds x, y of an upright person facing the camera, indexed by
// landmark id. The person's left side appears on the right of the image.
var standingPose = [33][2]float64{
	{0.50, 0.15},                               // nose
	{0.52, 0.13}, {0.53, 0.13}, {0.54, 0.13},   // left eye
	{0.48, 0.13}, {0.47, 0.13}, {0.46, 0.13},   // right eye
	{0.56, 0.14}, {0.44, 0.14},                 // ears
	{0.52, 0.18}, {0.48, 0.18},                 // mouth
	{0.60, 0.28}, {0.40, 0.28},                 // shoulders
	{0.63, 0.40}, {0.37, 0.40},                 // elbows
	{0.64, 0.52}, {0.36, 0.52},                 // wrists
	{0.65, 0.55}, {0.35, 0.55},                 // pinkies
	{0.64, 0.56}, {0.36, 0.56},                 // index fingers
	{0.63, 0.54}, {0.37, 0.54},                 // thumbs
	{0.56, 0.55}, {0.44, 0.55},                 // hips
	{0.57, 0.72}, {0.43, 0.72},                 // knees
	{0.57, 0.88}, {0.43, 0.88},                 // ankles
	{0.56, 0.91}, {0.44, 0.91},                 // heels
	{0.59, 0.93}, {0.41, 0.93},                 // foot index
}

// StandingPose returns a preset full-body pose with every landmark at the
// given visibility.
func StandingPose(visibility float64) []Landmark {
	out := make([]Landmark, len(standingPose))
	for i, p := range standingPose {
		out[i] = Landmark{X: p[0], Y: p[1], Visibility: visibility}
	}
	return out
}
