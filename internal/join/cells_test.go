package join

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMicros(t *testing.T) {
	t.Helper()

	tests := []struct {
		name  string
		units float64
		want  int64
	}{
		{"zero", 0, 0},
		{"whole", 12, 12_000_000},
		{"fractional", 1.5, 1_500_000},
		{"sub-micro rounds", 0.0000004, 0},
		{"half rounds away", 0.0000005, 1},
		{"negative", -2.25, -2_250_000},
		{"negative half rounds away", -0.0000005, -1},
		{"typical cost", 40.5, 40_500_000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Helper()
			assert.Equal(t, tc.want, Micros(tc.units))
		})
	}
}

func TestObserved(t *testing.T) {
	t.Helper()

	cell := Observed(3.5)
	assert.True(t, cell.Present)
	assert.Equal(t, 3.5, cell.Value)

	var absent Cell
	assert.False(t, absent.Present)
}
