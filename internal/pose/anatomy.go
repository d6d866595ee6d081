package pose

import "math"

// Box is a landmark's anatomically plausible area in normalized frame
// coordinates.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Clamp returns (x, y) moved to the nearest point inside the box.
func (b Box) Clamp(x, y float64) (float64, float64) {
	return clamp(x, b.MinX, b.MaxX), clamp(y, b.MinY, b.MaxY)
}

// Contains reports whether (x, y) lies inside the box, edges included.
func (b Box) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Center returns the midpoint of the box.
func (b Box) Center() (float64, float64) {
	return (b.MinX + b.MaxX) / 2, (b.MinY + b.MaxY) / 2
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// BoxFor returns the bounding box for id. Head landmarks are confined to
// the upper part of the frame, feet to the lower part.
func BoxFor(id LandmarkID) Box {
	switch {
	case id <= MouthRight:
		return Box{MinX: 0, MinY: 0, MaxX: 1, MaxY: 0.6}
	case id <= RightShoulder:
		return Box{MinX: 0, MinY: 0.05, MaxX: 1, MaxY: 0.75}
	case id <= RightElbow:
		return Box{MinX: 0, MinY: 0.05, MaxX: 1, MaxY: 0.9}
	case id <= RightThumb:
		return Box{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	case id <= RightHip:
		return Box{MinX: 0, MinY: 0.2, MaxX: 1, MaxY: 0.95}
	case id <= RightKnee:
		return Box{MinX: 0, MinY: 0.3, MaxX: 1, MaxY: 1}
	default:
		return Box{MinX: 0, MinY: 0.4, MaxX: 1, MaxY: 1}
	}
}

// ClampSample returns s with its position clamped to its box.
func ClampSample(s Sample) Sample {
	s.X, s.Y = BoxFor(s.ID).Clamp(s.X, s.Y)
	return s
}

// Bone is a parent-child joint pair whose length is expected to stay
// stable over short windows.
type Bone struct {
	Parent, Child LandmarkID
}

// Bones lists the constrained pairs, proximal first so that a projected
// joint is settled before its children are checked.
var Bones = []Bone{
	{LeftShoulder, LeftHip},
	{RightShoulder, RightHip},
	{LeftShoulder, LeftElbow},
	{RightShoulder, RightElbow},
	{LeftElbow, LeftWrist},
	{RightElbow, RightWrist},
	{LeftHip, LeftKnee},
	{RightHip, RightKnee},
	{LeftKnee, LeftAnkle},
	{RightKnee, RightAnkle},
	{LeftAnkle, LeftHeel},
	{RightAnkle, RightHeel},
	{LeftAnkle, LeftFootIndex},
	{RightAnkle, RightFootIndex},
}

// Distance returns the 2D distance between two samples.
func Distance(a, b Sample) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
