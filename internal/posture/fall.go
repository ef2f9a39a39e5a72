package posture

// Nominal standing head height in metres.
const nominalHeadHigh = 0.8

// FallProbability combines head height, the share of reference joints
// near the floor (0-100) and torso inclination (degrees) into one score,
// each term weighted 0.3. It is a heuristic in roughly [0, 1], not a
// calibrated probability.
func FallProbability(headHigh, bodyPercentage, bodyInclination float64) float64 {
	return 0.3*(headHigh/nominalHeadHigh) + 0.3*(bodyPercentage/100) + 0.3*(bodyInclination/90)
}
