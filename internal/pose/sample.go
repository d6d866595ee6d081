package pose

import "sort"

// Status describes how a landmark value in the output was obtained.
type Status string

const (
	StatusDetected         Status = "detected"
	StatusPredicted        Status = "predicted"
	StatusInterpolated     Status = "interpolated"
	StatusRawLowConfidence Status = "raw_low_confidence"
	StatusMissing          Status = "missing"
)

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusDetected, StatusPredicted, StatusInterpolated, StatusRawLowConfidence, StatusMissing:
		return st, true
	}
	return "", false
}

// SourceMerged marks a frame assembled from several strategies.
const SourceMerged = "merged"

// Sample is one landmark estimate. X and Y are frame-normalized, Z is a
// relative depth. Samples are values: stages produce new ones instead of
// editing shared records.
type Sample struct {
	ID         LandmarkID `json:"landmark_id"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Z          float64    `json:"z"`
	Visibility float64    `json:"visibility"`
	Status     Status     `json:"status"`
	Source     string     `json:"source,omitempty"`
}

// Present reports whether the sample carries a position.
func (s Sample) Present() bool {
	return s.Status != StatusMissing && s.Status != ""
}

// MissingSample returns the placeholder for a landmark with no estimate.
func MissingSample(id LandmarkID) Sample {
	return Sample{ID: id, Status: StatusMissing}
}

// FrameDetection is the landmark set one strategy produced for one frame.
type FrameDetection struct {
	FrameID  int
	Strategy string
	Samples  []Sample
}

// Sorted returns a copy of the detection with samples ordered by id and
// duplicates dropped (first occurrence wins).
func (d FrameDetection) Sorted() FrameDetection {
	out := FrameDetection{FrameID: d.FrameID, Strategy: d.Strategy}
	seen := make(map[LandmarkID]bool, len(d.Samples))
	for _, s := range d.Samples {
		if !s.ID.Valid() || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out.Samples = append(out.Samples, s)
	}
	sort.Slice(out.Samples, func(i, j int) bool {
		return out.Samples[i].ID < out.Samples[j].ID
	})
	return out
}

// Lookup returns the detection's sample for id.
func (d FrameDetection) Lookup(id LandmarkID) (Sample, bool) {
	for _, s := range d.Samples {
		if s.ID == id {
			return s, true
		}
	}
	return Sample{}, false
}

// Quality labels assigned by the scorer.
const (
	LabelGood             = "good"
	LabelModerate         = "moderate"
	LabelPoor             = "poor"
	LabelMissingDetection = "missing_detection"
)

// MissingRegionLabel is the label used when a required region is not visible.
func MissingRegionLabel(r Region) string {
	return "missing_" + string(r)
}

// ScoredDetection is a detection with its plausibility score.
type ScoredDetection struct {
	FrameDetection
	Score float64
	Label string
}

// FrameResult is the selector's output for one frame: exactly one sample per
// landmark id, absent ones flagged missing.
type FrameResult struct {
	FrameID  int
	Source   string
	Score    float64
	Label    string
	Category string
	Samples  [NumLandmarks]Sample
}

// NewMissingFrame returns a frame with every landmark missing.
func NewMissingFrame(frameID int) FrameResult {
	f := FrameResult{FrameID: frameID, Label: LabelMissingDetection}
	for i := range f.Samples {
		f.Samples[i] = MissingSample(LandmarkID(i))
	}
	return f
}

// FrameFromDetection builds a frame result from a scored detection. Every
// returned sample is flagged detected; ids not in the detection are missing.
func FrameFromDetection(sd ScoredDetection) FrameResult {
	f := NewMissingFrame(sd.FrameID)
	f.Source = sd.Strategy
	f.Score = sd.Score
	f.Label = sd.Label
	for _, s := range sd.Samples {
		if !s.ID.Valid() {
			continue
		}
		s.Status = StatusDetected
		if s.Source == "" {
			s.Source = sd.Strategy
		}
		f.Samples[s.ID] = s
	}
	return f
}

// Detection converts the present samples back into a FrameDetection.
func (f FrameResult) Detection() FrameDetection {
	d := FrameDetection{FrameID: f.FrameID, Strategy: f.Source}
	for _, s := range f.Samples {
		if s.Present() {
			d.Samples = append(d.Samples, s)
		}
	}
	return d
}

// Sequence is the final, frame-ordered result for one video.
type Sequence struct {
	Frames []FrameResult
}

// Row is one line of the flat output table.
type Row struct {
	FrameID    int        `json:"frame_id"`
	LandmarkID LandmarkID `json:"landmark_id"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Z          float64    `json:"z"`
	Visibility float64    `json:"visibility"`
	Status     Status     `json:"status"`
}

// Rows flattens the sequence into exactly NumLandmarks rows per frame.
// Missing landmarks report the center of their anatomical box and zero
// visibility.
func (s Sequence) Rows() []Row {
	rows := make([]Row, 0, len(s.Frames)*NumLandmarks)
	for _, f := range s.Frames {
		for i, smp := range f.Samples {
			id := LandmarkID(i)
			r := Row{FrameID: f.FrameID, LandmarkID: id, Status: smp.Status}
			if smp.Present() {
				r.X, r.Y = BoxFor(id).Clamp(smp.X, smp.Y)
				r.Z = smp.Z
				r.Visibility = smp.Visibility
			} else {
				r.X, r.Y = BoxFor(id).Center()
				r.Status = StatusMissing
			}
			rows = append(rows, r)
		}
	}
	return rows
}

// StatusCounts tallies samples per status across the sequence.
func (s Sequence) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, f := range s.Frames {
		for _, smp := range f.Samples {
			st := smp.Status
			if !smp.Present() {
				st = StatusMissing
			}
			counts[st]++
		}
	}
	return counts
}
