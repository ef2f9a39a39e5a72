// Package skeleton models tracked bodies as named 3D joints and provides
// the geometric measurements the posture classifier is built on.
//
// Positions are sensor-space metres with Y pointing up. All functions are
// pure; degenerate geometry resolves to 0 instead of an error.
package skeleton

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// JointID names a skeleton joint.
type JointID int

const (
	HipCenter JointID = iota
	Spine
	ShoulderCenter
	Head
	ShoulderLeft
	ElbowLeft
	WristLeft
	HandLeft
	ShoulderRight
	ElbowRight
	WristRight
	HandRight
	HipLeft
	KneeLeft
	AnkleLeft
	FootLeft
	HipRight
	KneeRight
	AnkleRight
	FootRight

	JointCount
)

var jointNames = [JointCount]string{
	"hip_center", "spine", "shoulder_center", "head",
	"shoulder_left", "elbow_left", "wrist_left", "hand_left",
	"shoulder_right", "elbow_right", "wrist_right", "hand_right",
	"hip_left", "knee_left", "ankle_left", "foot_left",
	"hip_right", "knee_right", "ankle_right", "foot_right",
}

func (j JointID) String() string {
	if j >= 0 && j < JointCount {
		return jointNames[j]
	}
	return fmt.Sprintf("JointID(%d)", int(j))
}

// ParseJointID resolves a joint name as produced by String.
func ParseJointID(s string) (JointID, error) {
	for i, n := range jointNames {
		if n == s {
			return JointID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown joint %q", s)
}

// TrackingState is the sensor's confidence in a skeleton or joint.
type TrackingState int

const (
	NotTracked TrackingState = iota
	PositionOnly
	Inferred
	Tracked
)

func (s TrackingState) String() string {
	switch s {
	case NotTracked:
		return "not_tracked"
	case PositionOnly:
		return "position_only"
	case Inferred:
		return "inferred"
	case Tracked:
		return "tracked"
	}
	return fmt.Sprintf("TrackingState(%d)", int(s))
}

// Joint is one joint position with its tracking state.
type Joint struct {
	Position r3.Vec
	State    TrackingState
}

// Skeleton is one body in a skeleton frame.
type Skeleton struct {
	TrackingID int
	State      TrackingState
	Joints     [JointCount]Joint
}

// Tracked reports whether the skeleton may be classified.
func (s *Skeleton) Tracked() bool {
	return s != nil && s.State == Tracked
}

// Pos returns the position of joint j.
func (s *Skeleton) Pos(j JointID) r3.Vec {
	return s.Joints[j].Position
}

// Set assigns a tracked position to joint j.
func (s *Skeleton) Set(j JointID, p r3.Vec) {
	s.Joints[j] = Joint{Position: p, State: Tracked}
}

// Frame is one skeleton frame from the sensor.
type Frame struct {
	Sequence  uint64
	Timestamp time.Time
	Skeletons []Skeleton
}

// TrackedSkeletons returns pointers to the tracked skeletons of f.
func (f *Frame) TrackedSkeletons() []*Skeleton {
	var out []*Skeleton
	for i := range f.Skeletons {
		if f.Skeletons[i].Tracked() {
			out = append(out, &f.Skeletons[i])
		}
	}
	return out
}
