package econ

import "sort"

// Gini computes the Gini coefficient over the given wealth values in
// O(n log n). The input slice is sorted in place. Returns 0 for fewer than
// two values or zero total wealth.
func Gini(wealth []float64) float64 {
	n := len(wealth)
	if n < 2 {
		return 0
	}
	sort.Float64s(wealth)
	var total, weighted float64
	for i, w := range wealth {
		total += w
		weighted += float64(i+1) * w
	}
	if total <= 0 {
		return 0
	}
	fn := float64(n)
	g := (2*weighted)/(fn*total) - (fn+1)/fn
	if g < 0 {
		g = 0
	}
	if g > 1 {
		g = 1
	}
	return g
}
