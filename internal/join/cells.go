package join

import "math"

const microsPerUnit = 1e6

// Cell is one joined numeric value. Present distinguishes observed
// zeros from absent data; absent cells count as zero in totals.
type Cell struct {
	Value   float64 `json:"value"`
	Present bool    `json:"present"`
}

// Observed wraps a value that was actually reported by a provider.
func Observed(value float64) Cell {
	return Cell{Value: value, Present: true}
}

// Micros converts a currency amount in units to micros, rounding halves
// away from zero.
func Micros(units float64) int64 {
	return int64(math.Round(units * microsPerUnit))
}
