// Package pose defines the body landmark model shared by every stage of the
// recovery pipeline: landmark ids, samples, per-frame results and the flat
// output table.
package pose

import "fmt"

// LandmarkID identifies one body joint. Ids follow the MediaPipe pose convention
// and are never reused for a different joint.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
type LandmarkID int

const (
	Nose LandmarkID = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
)

// NumLandmarks is the number of tracked joints per frame.
const NumLandmarks = 33

var landmarkNames = [NumLandmarks]string{
	"nose",
	"left_eye_inner", "left_eye", "left_eye_outer",
	"right_eye_inner", "right_eye", "right_eye_outer",
	"left_ear", "right_ear",
	"mouth_left", "mouth_right",
	"left_shoulder", "right_shoulder",
	"left_elbow", "right_elbow",
	"left_wrist", "right_wrist",
	"left_pinky", "right_pinky",
	"left_index", "right_index",
	"left_thumb", "right_thumb",
	"left_hip", "right_hip",
	"left_knee", "right_knee",
	"left_ankle", "right_ankle",
	"left_heel", "right_heel",
	"left_foot_index", "right_foot_index",
}

// Valid reports whether id is one of the 33 known joints.
func (id LandmarkID) Valid() bool {
	return id >= 0 && id < NumLandmarks
}

// String returns the snake_case joint name.
func (id LandmarkID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("landmark(%d)", int(id))
	}
	return landmarkNames[id]
}

// Mirror returns the left/right counterpart of id. The nose has no
// counterpart and maps to itself.
func Mirror(id LandmarkID) LandmarkID {
	switch {
	case id == Nose || !id.Valid():
		return id
	case id <= RightEyeOuter:
		// eyes: 1,2,3 <-> 4,5,6
		if id <= LeftEyeOuter {
			return id + 3
		}
		return id - 3
	default:
		// everything from the ears onward alternates left (odd) / right (even)
		if id%2 == 1 {
			return id + 1
		}
		return id - 1
	}
}

// Region is a named subset of joints used for scoring.
type Region string

const (
	RegionAll  Region = "all"
	RegionFace Region = "face"
	RegionArms Region = "arms"
	RegionLegs Region = "legs"
)

// IDs returns the joints that belong to the region in id order.
func (r Region) IDs() []LandmarkID {
	var lo, hi LandmarkID
	switch r {
	case RegionFace:
		lo, hi = Nose, MouthRight
	case RegionArms:
		lo, hi = LeftShoulder, RightThumb
	case RegionLegs:
		lo, hi = LeftHip, RightFootIndex
	default:
		lo, hi = Nose, RightFootIndex
	}
	ids := make([]LandmarkID, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		ids = append(ids, id)
	}
	return ids
}

// ParseRegion converts a config string into a Region.
func ParseRegion(s string) (Region, error) {
	switch r := Region(s); r {
	case RegionAll, RegionFace, RegionArms, RegionLegs:
		return r, nil
	case "":
		return RegionAll, nil
	}
	return "", fmt.Errorf("unknown region %q", s)
}

// LimbPair is a left joint and its right counterpart.
type LimbPair struct {
	Left, Right LandmarkID
}

// LimbPairs returns the left/right pairs of the region's limb joints.
// For RegionAll both arms and legs are returned.
func LimbPairs(r Region) []LimbPair {
	var ids []LandmarkID
	switch r {
	case RegionArms, RegionLegs:
		ids = r.IDs()
	default:
		ids = append(RegionArms.IDs(), RegionLegs.IDs()...)
	}
	pairs := make([]LimbPair, 0, len(ids)/2)
	for _, id := range ids {
		if id%2 == 1 {
			pairs = append(pairs, LimbPair{Left: id, Right: Mirror(id)})
		}
	}
	return pairs
}
