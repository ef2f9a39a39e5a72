package skeleton

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultFloorThreshold is the height below which a joint counts as lying
// near the floor.
const DefaultFloorThreshold = -0.5

var up = r3.Vec{Y: 1}

// ReferenceJoints is the set of joints counted by BodyPercentage.
var ReferenceJoints = []JointID{
	HipCenter, HipLeft, HipRight,
	ElbowLeft, ElbowRight,
	ShoulderCenter, ShoulderRight, ShoulderLeft,
	Spine, Head,
}

// AngleBetween returns the angle in degrees at vertex between the rays to
// a and c. A zero-length ray or a cosine outside [-1, 1] yields 0.
func AngleBetween(a, vertex, c r3.Vec) float64 {
	u := r3.Sub(a, vertex)
	v := r3.Sub(c, vertex)
	cos := r3.Dot(u, v) / (r3.Norm(u) * r3.Norm(v))
	if math.IsNaN(cos) || cos < -1 || cos > 1 {
		return 0
	}
	return math.Acos(cos) * 180 / math.Pi
}

// VectorNorm is the Euclidean length of v.
func VectorNorm(v r3.Vec) float64 {
	return r3.Norm(v)
}

// Mean returns the centroid of the given joints.
func Mean(s *Skeleton, joints ...JointID) r3.Vec {
	var sum r3.Vec
	if len(joints) == 0 {
		return sum
	}
	for _, j := range joints {
		sum = r3.Add(sum, s.Pos(j))
	}
	return r3.Scale(1/float64(len(joints)), sum)
}

// BodyFloorAngle is the vertical separation between the torso (spine and
// hip centre) and the knees. Despite the name it is a height, in metres;
// it shrinks towards zero as the torso drops to knee level.
func BodyFloorAngle(s *Skeleton) float64 {
	high := Mean(s, Spine, HipCenter)
	low := Mean(s, KneeLeft, KneeRight)
	return high.Y - low.Y
}

// HipsKneesHigh returns the smaller of the two hip-minus-knee heights. The
// more negative it is, the higher a knee is raised relative to its hip.
func HipsKneesHigh(s *Skeleton) float64 {
	right := s.Pos(HipRight).Y - s.Pos(KneeRight).Y
	left := s.Pos(HipLeft).Y - s.Pos(KneeLeft).Y
	return math.Min(right, left)
}

// HeadHigh is the head's height.
func HeadHigh(s *Skeleton) float64 {
	return s.Pos(Head).Y
}

// TorsoTilt is the angle in degrees between the knees-to-torso vector and
// the vertical: 0 upright, 90 lying flat.
func TorsoTilt(s *Skeleton) float64 {
	high := Mean(s, Spine, HipCenter)
	low := Mean(s, KneeLeft, KneeRight)
	return AngleBetween(high, low, r3.Add(low, up))
}

// FloorElevation is the angle in degrees between high-low and its
// projection onto the floor plane. The sensor is assumed level from side
// to side.
func FloorElevation(high, low r3.Vec) float64 {
	v := r3.Sub(high, low)
	floor := r3.Vec{X: v.X, Z: v.Z}
	return AngleBetween(r3.Add(low, v), low, r3.Add(low, floor))
}

// BodyPercentage is the share, 0 to 100, of ReferenceJoints whose height
// is below floorY.
func BodyPercentage(s *Skeleton, floorY float64) float64 {
	below := 0
	for _, j := range ReferenceJoints {
		if s.Pos(j).Y < floorY {
			below++
		}
	}
	return 100 * float64(below) / float64(len(ReferenceJoints))
}
