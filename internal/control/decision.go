package control

// ActivationThreshold is how far below target, in °C, a reading must be
// before the heating outlet is switched on.
const ActivationThreshold = 0.2

// Decide returns whether the outlet should be active for a reading.
//
// The outlet is wanted on exactly when the reading is more than
// ActivationThreshold below target. The threshold is single-sided:
// previousOutletActive is accepted but does not change the result, so a
// reading hovering near target-0.2 can toggle the outlet every cycle.
func Decide(current, target float64, previousOutletActive bool) bool {
	return target-current > ActivationThreshold
}

// ShouldActuate reports whether a decision is a state change that needs a
// command. Repeating the current state is never sent.
func ShouldActuate(desired, previousOutletActive bool) bool {
	return desired != previousOutletActive
}
