package econ

import (
	"math"
	"testing"
)

func TestGini(t *testing.T) {
	cases := []struct {
		name   string
		wealth []float64
		want   float64
		tol    float64
	}{
		{"empty", nil, 0, 0},
		{"single", []float64{5}, 0, 0},
		{"perfect equality", []float64{2, 2, 2, 2}, 0, 1e-9},
		{"total concentration", []float64{0, 0, 0, 100}, 0.75, 1e-9},
		{"two-point", []float64{0, 100}, 0.5, 1e-9},
		{"zero total", []float64{0, 0, 0}, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := append([]float64(nil), tc.wealth...)
			got := Gini(in)
			if math.Abs(got-tc.want) > tc.tol {
				t.Fatalf("Gini(%v) = %v, want %v", tc.wealth, got, tc.want)
			}
		})
	}
}

func TestGiniMonotoneInConcentration(t *testing.T) {
	even := Gini([]float64{10, 10, 10, 10, 10})
	skew := Gini([]float64{1, 1, 1, 1, 46})
	if skew <= even {
		t.Fatalf("concentrated distribution should have higher Gini: %v <= %v", skew, even)
	}
	if skew > 1 {
		t.Fatalf("Gini above 1: %v", skew)
	}
}
