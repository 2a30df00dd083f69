// Package coord provides floor-correct integer division for world coordinates.
package coord

import "math"

// FloorDiv returns floor(a / b) for b > 0.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && (a < 0) {
		q--
	}
	return q
}

// FloorMod returns a - b*FloorDiv(a, b), always in [0, b) for b > 0.
func FloorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// FloorModF is the float form of FloorMod, in [0, b) for b > 0.
func FloorModF(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	if m >= b {
		m = 0
	}
	return m
}

// FloorInt returns floor(v) as an int.
func FloorInt(v float64) int { return int(math.Floor(v)) }
