package game

import "math"

// MultiplierAt maps elapsed round time to the live multiplier. Growth
// is linear: 1 + (elapsed seconds * growthFactor), rounded to four
// decimal places so ticks and settlements compare stably. Negative
// elapsed time (clock skew) yields the baseline 1.0 rather than a
// fabricated sub-1.0 value.
func MultiplierAt(elapsedMillis int64, growthFactor float64) float64 {
	if elapsedMillis <= 0 {
		return MinMultiplier
	}
	mult := 1.0 + (float64(elapsedMillis)/1000.0)*growthFactor
	return math.Round(mult*1e4) / 1e4
}
