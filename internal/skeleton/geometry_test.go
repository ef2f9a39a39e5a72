package skeleton

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// standing builds an upright skeleton with the head at headY.
func standing(headY float64) *Skeleton {
	s := &Skeleton{State: Tracked}
	s.Set(Head, r3.Vec{Y: headY, Z: 2})
	s.Set(ShoulderCenter, r3.Vec{Y: headY - 0.2, Z: 2})
	s.Set(ShoulderLeft, r3.Vec{X: -0.2, Y: headY - 0.2, Z: 2})
	s.Set(ShoulderRight, r3.Vec{X: 0.2, Y: headY - 0.2, Z: 2})
	s.Set(ElbowLeft, r3.Vec{X: -0.25, Y: headY - 0.45, Z: 2})
	s.Set(ElbowRight, r3.Vec{X: 0.25, Y: headY - 0.45, Z: 2})
	s.Set(HandLeft, r3.Vec{X: -0.25, Y: headY - 0.7, Z: 2})
	s.Set(HandRight, r3.Vec{X: 0.25, Y: headY - 0.7, Z: 2})
	s.Set(Spine, r3.Vec{Y: headY - 0.5, Z: 2})
	s.Set(HipCenter, r3.Vec{Y: headY - 0.7, Z: 2})
	s.Set(HipLeft, r3.Vec{X: -0.1, Y: headY - 0.7, Z: 2})
	s.Set(HipRight, r3.Vec{X: 0.1, Y: headY - 0.7, Z: 2})
	s.Set(KneeLeft, r3.Vec{X: -0.1, Y: headY - 1.2, Z: 2})
	s.Set(KneeRight, r3.Vec{X: 0.1, Y: headY - 1.2, Z: 2})
	return s
}

func TestAngleBetween_KnownAngles(t *testing.T) {
	o := r3.Vec{}
	x := r3.Vec{X: 1}
	y := r3.Vec{Y: 2}

	assert.InDelta(t, 90, AngleBetween(x, o, y), 1e-9)
	assert.InDelta(t, 180, AngleBetween(x, o, r3.Vec{X: -3}), 1e-9)
	assert.InDelta(t, 45, AngleBetween(x, o, r3.Vec{X: 1, Y: 1}), 1e-9)
	assert.InDelta(t, 0, AngleBetween(x, o, r3.Vec{X: 5}), 1e-6)
}

func TestAngleBetween_Symmetric(t *testing.T) {
	cases := [][3]r3.Vec{
		{{X: 1, Y: 2, Z: 3}, {X: -1, Z: 0.5}, {X: 0.3, Y: -2, Z: 1}},
		{{Y: 1}, {}, {X: 1, Y: 1}},
		{{X: 0.2, Y: 0.5, Z: 2}, {X: 0.1, Y: -0.2, Z: 2.1}, {X: 0.1, Y: -0.7, Z: 1.8}},
	}
	for i, c := range cases {
		assert.InDelta(t, AngleBetween(c[0], c[1], c[2]), AngleBetween(c[2], c[1], c[0]), 1e-12, "case %d", i)
	}
}

func TestAngleBetween_ZeroLengthIsZero(t *testing.T) {
	a := r3.Vec{X: 1, Y: 2, Z: 3}
	c := r3.Vec{X: -4, Y: 0, Z: 1}

	got := AngleBetween(a, a, c)
	assert.Equal(t, 0.0, got)
	assert.False(t, math.IsNaN(got))

	assert.Equal(t, 0.0, AngleBetween(a, c, c))
	assert.Equal(t, 0.0, AngleBetween(a, a, a))
}

func TestVectorNorm(t *testing.T) {
	assert.InDelta(t, 5, VectorNorm(r3.Vec{X: 3, Y: 4}), 1e-12)
	assert.InDelta(t, 3, VectorNorm(r3.Vec{X: 1, Y: 2, Z: 2}), 1e-12)
	assert.Equal(t, 0.0, VectorNorm(r3.Vec{}))
}

func TestBodyFloorAngle(t *testing.T) {
	s := standing(0.8)
	// torso mean at 0.8-0.6, knee mean at 0.8-1.2
	assert.InDelta(t, 0.6, BodyFloorAngle(s), 1e-9)

	s.Set(Spine, r3.Vec{Y: -0.4})
	s.Set(HipCenter, r3.Vec{Y: -0.4})
	assert.InDelta(t, 0, BodyFloorAngle(s), 1e-9)
}

func TestHipsKneesHigh(t *testing.T) {
	s := standing(0.8)
	assert.InDelta(t, 0.5, HipsKneesHigh(s), 1e-9)

	// left knee raised above its hip
	s.Set(KneeLeft, r3.Vec{X: -0.1, Y: 0.3, Z: 1.7})
	assert.InDelta(t, -0.2, HipsKneesHigh(s), 1e-9)
}

func TestHeadHigh(t *testing.T) {
	assert.Equal(t, 0.8, HeadHigh(standing(0.8)))
}

func TestTorsoTilt(t *testing.T) {
	assert.InDelta(t, 0, TorsoTilt(standing(0.8)), 1e-6)

	lying := &Skeleton{State: Tracked}
	lying.Set(Spine, r3.Vec{X: 1, Y: -0.9})
	lying.Set(HipCenter, r3.Vec{X: 0.8, Y: -0.9})
	lying.Set(KneeLeft, r3.Vec{X: 0.2, Y: -0.9})
	lying.Set(KneeRight, r3.Vec{X: 0.2, Y: -0.9})
	assert.InDelta(t, 90, TorsoTilt(lying), 1e-9)

	// torso and knees coincide
	assert.Equal(t, 0.0, TorsoTilt(&Skeleton{State: Tracked}))
}

func TestFloorElevation(t *testing.T) {
	low := r3.Vec{X: 1, Y: -1, Z: 2}
	assert.InDelta(t, 45, FloorElevation(r3.Add(low, r3.Vec{X: 1, Y: 1}), low), 1e-9)
	assert.InDelta(t, 0, FloorElevation(r3.Add(low, r3.Vec{Z: 1}), low), 1e-6)
}

func TestBodyPercentage(t *testing.T) {
	s := standing(0.8)
	assert.Equal(t, 0.0, BodyPercentage(s, DefaultFloorThreshold))

	// every reference joint on the floor
	for _, j := range ReferenceJoints {
		p := s.Pos(j)
		p.Y = -0.9
		s.Set(j, p)
	}
	assert.Equal(t, 100.0, BodyPercentage(s, DefaultFloorThreshold))

	// head and spine back up: 8 of 10
	s.Set(Head, r3.Vec{Y: 0.2})
	s.Set(Spine, r3.Vec{Y: -0.5})
	assert.InDelta(t, 80, BodyPercentage(s, DefaultFloorThreshold), 1e-9)
}

func TestMean(t *testing.T) {
	s := standing(0.8)
	m := Mean(s, KneeLeft, KneeRight)
	assert.InDelta(t, 0, m.X, 1e-12)
	assert.InDelta(t, -0.4, m.Y, 1e-12)
	assert.Equal(t, r3.Vec{}, Mean(s))
}

func TestJointIDNames(t *testing.T) {
	for j := JointID(0); j < JointCount; j++ {
		got, err := ParseJointID(j.String())
		require.NoError(t, err)
		assert.Equal(t, j, got)
	}
	_, err := ParseJointID("tail")
	assert.Error(t, err)
	assert.Equal(t, "JointID(42)", JointID(42).String())
}

func TestFrame_TrackedSkeletons(t *testing.T) {
	f := Frame{Skeletons: []Skeleton{
		{TrackingID: 1, State: Tracked},
		{TrackingID: 2, State: PositionOnly},
		{TrackingID: 3, State: Tracked},
	}}
	got := f.TrackedSkeletons()
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].TrackingID)
	assert.Equal(t, 3, got[1].TrackingID)
	assert.Same(t, &f.Skeletons[2], got[1])

	var nilSkel *Skeleton
	assert.False(t, nilSkel.Tracked())
}
