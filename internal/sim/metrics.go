package sim

import (
	"math"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/econ"
)

// Metrics are the scalar observables published each tick. Polarization is
// measured over regional belief centroids: the mean and stddev of pairwise
// centroid distances in 4-D.
type Metrics struct {
	Generation       uint64  `json:"generation"`
	PolarizationMean float64 `json:"polarization_mean"`
	PolarizationStd  float64 `json:"polarization_std"`
	AvgOpenness      float64 `json:"avg_openness"`
	AvgConformity    float64 `json:"avg_conformity"`
	Welfare          float64 `json:"welfare"`
	Inequality       float64 `json:"inequality"`
	Hardship         float64 `json:"hardship"`
	TradeVolume      float64 `json:"trade_volume"`
	Population       int     `json:"population"`
}

// ComputeMetrics derives the current observables from kernel state.
func (k *Kernel) ComputeMetrics() Metrics {
	m := Metrics{
		Generation:  k.generation,
		TradeVolume: k.eco.TradeVolume,
		Population:  k.tbl.Live(),
	}

	centroids := k.regionCentroids()
	counts := make([]int, len(centroids))
	for r := range centroids {
		counts[r] = len(k.tbl.RegionIndex(uint32(r)))
	}

	// Pairwise centroid distances over populated regions.
	var dists []float64
	for i := range centroids {
		if counts[i] == 0 {
			continue
		}
		for j := i + 1; j < len(centroids); j++ {
			if counts[j] == 0 {
				continue
			}
			d := 0.0
			for dim := 0; dim < agents.BeliefDims; dim++ {
				dd := centroids[i][dim] - centroids[j][dim]
				d += dd * dd
			}
			dists = append(dists, math.Sqrt(d))
		}
	}
	if len(dists) > 0 {
		sum := 0.0
		for _, d := range dists {
			sum += d
		}
		m.PolarizationMean = sum / float64(len(dists))
		sq := 0.0
		for _, d := range dists {
			sq += (d - m.PolarizationMean) * (d - m.PolarizationMean)
		}
		m.PolarizationStd = math.Sqrt(sq / float64(len(dists)))
	}

	// Agent averages.
	live := 0
	wealth := make([]float64, 0, k.tbl.Live())
	ag := k.tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		live++
		m.AvgOpenness += a.Openness
		m.AvgConformity += a.Conformity
		m.Hardship += a.Hardship
		wealth = append(wealth, a.Wealth)
	}
	if live > 0 {
		m.AvgOpenness /= float64(live)
		m.AvgConformity /= float64(live)
		m.Hardship /= float64(live)
	}
	m.Inequality = econ.Gini(wealth)

	// Welfare averages over regions weighted by population.
	var wsum float64
	var psum int
	for r := range k.eco.Regions {
		pop := counts[r]
		wsum += k.eco.Regions[r].Welfare * float64(pop)
		psum += pop
	}
	if psum > 0 {
		m.Welfare = wsum / float64(psum)
	}

	return m
}

// SnapshotHash folds generation and every live agent's belief state into a
// 64-bit FNV-1a hash. Two kernels on identical trajectories hash equal.
func (k *Kernel) SnapshotHash() uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	mix := func(v uint64) {
		for s := 0; s < 64; s += 8 {
			h ^= (v >> s) & 0xff
			h *= prime
		}
	}
	mix(k.generation)
	ag := k.tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		mix(uint64(a.ID))
		for d := 0; d < agents.BeliefDims; d++ {
			mix(math.Float64bits(a.B[d]))
		}
	}
	return h
}
