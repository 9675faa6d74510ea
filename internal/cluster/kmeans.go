// Package cluster detects cultures in 4-D belief space: incremental k-means
// updated every tick, plus an on-demand DBSCAN for the shell.
package cluster

import (
	"math"
	"math/rand"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

// KMeans holds k centroids and the per-agent assignment. Centroids move by
// a constant learning rate toward each observed member, which keeps the
// update O(N) per tick with no full pass.
type KMeans struct {
	Centroids [][agents.BeliefDims]float64
	Alpha     float64

	// ReassignEvery is the period of the full reassignment pass.
	ReassignEvery uint64

	// assign maps agent id → cluster, or -1 for unassigned/dead slots.
	assign []int32
}

// Summary describes one cluster for snapshots and movement seeding.
type Summary struct {
	ID       int                        `json:"id"`
	Size     int                        `json:"size"`
	Centroid [agents.BeliefDims]float64 `json:"centroid"`
	// Coherence is the mean pairwise cosine similarity of the members.
	Coherence float64 `json:"coherence"`
	// CharismaDensity is the fraction of members with assertiveness > 0.7.
	CharismaDensity float64 `json:"charisma_density"`
}

// NewKMeans seeds k centroids from random live agents.
func NewKMeans(k int, alpha float64, reassignEvery uint64, tbl *agents.Table, r *rand.Rand) *KMeans {
	km := &KMeans{
		Centroids:     make([][agents.BeliefDims]float64, k),
		Alpha:         alpha,
		ReassignEvery: reassignEvery,
	}
	km.seedFromAgents(tbl, r)
	km.Reassign(tbl)
	return km
}

func (km *KMeans) seedFromAgents(tbl *agents.Table, r *rand.Rand) {
	ag := tbl.Agents()
	live := make([]uint32, 0, len(ag))
	for i := range ag {
		if ag[i].Alive {
			live = append(live, ag[i].ID)
		}
	}
	for c := range km.Centroids {
		if len(live) > 0 {
			km.Centroids[c] = ag[live[r.Intn(len(live))]].B
		}
	}
}

// Assignment returns the cluster id for an agent, or -1.
func (km *KMeans) Assignment(id uint32) int32 {
	if int(id) >= len(km.assign) {
		return -1
	}
	return km.assign[id]
}

// K returns the number of centroids.
func (km *KMeans) K() int {
	return len(km.Centroids)
}

func (km *KMeans) ensureAssign(n int) {
	for len(km.assign) < n {
		km.assign = append(km.assign, -1)
	}
}

// Tick performs the online update: each live agent pulls its nearest
// centroid toward itself by alpha. Every ReassignEvery ticks a full
// reassignment pass runs and empty clusters are re-seeded.
func (km *KMeans) Tick(tbl *agents.Table, tick uint64, r *rand.Rand) {
	ag := tbl.Agents()
	km.ensureAssign(len(ag))

	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			km.assign[i] = -1
			continue
		}
		c := km.nearest(a.B)
		km.assign[i] = int32(c)
		for k := 0; k < agents.BeliefDims; k++ {
			km.Centroids[c][k] += km.Alpha * (a.B[k] - km.Centroids[c][k])
		}
	}

	if km.ReassignEvery > 0 && tick%km.ReassignEvery == 0 {
		km.Reassign(tbl)
		km.reseedEmpty(tbl, r)
	}
}

// Reassign runs a full nearest-centroid pass over live agents.
func (km *KMeans) Reassign(tbl *agents.Table) {
	ag := tbl.Agents()
	km.ensureAssign(len(ag))
	for i := range ag {
		if !ag[i].Alive {
			km.assign[i] = -1
			continue
		}
		km.assign[i] = int32(km.nearest(ag[i].B))
	}
}

// reseedEmpty moves empty clusters onto random live agents so every
// centroid stays meaningful.
func (km *KMeans) reseedEmpty(tbl *agents.Table, r *rand.Rand) {
	sizes := make([]int, len(km.Centroids))
	for _, c := range km.assign {
		if c >= 0 {
			sizes[c]++
		}
	}
	ag := tbl.Agents()
	live := make([]uint32, 0, len(ag))
	for i := range ag {
		if ag[i].Alive {
			live = append(live, ag[i].ID)
		}
	}
	if len(live) == 0 {
		return
	}
	for c, size := range sizes {
		if size == 0 {
			id := live[r.Intn(len(live))]
			km.Centroids[c] = ag[id].B
			km.assign[id] = int32(c)
		}
	}
}

func (km *KMeans) nearest(b [agents.BeliefDims]float64) int {
	best := 0
	bestD := math.MaxFloat64
	for c := range km.Centroids {
		d := 0.0
		for k := 0; k < agents.BeliefDims; k++ {
			dd := b[k] - km.Centroids[c][k]
			d += dd * dd
		}
		if d < bestD {
			bestD = d
			best = c
		}
	}
	return best
}

// Summaries publishes per-cluster size, centroid, coherence, and charisma
// density. Coherence is the exact mean pairwise cosine similarity of the
// members, computed in O(n) from the unit-vector sum:
// mean_{i≠j} uᵢ·uⱼ = (|Σu|² − n) / (n(n−1)).
func (km *KMeans) Summaries(tbl *agents.Table) []Summary {
	k := len(km.Centroids)
	out := make([]Summary, k)
	unitSums := make([][agents.BeliefDims]float64, k)
	charisma := make([]int, k)

	ag := tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		c := km.assign[i]
		if c < 0 {
			continue
		}
		out[c].Size++
		if a.Assertiveness > 0.7 {
			charisma[c]++
		}
		norm := math.Sqrt(a.BNormSq)
		if norm > 0 {
			for d := 0; d < agents.BeliefDims; d++ {
				unitSums[c][d] += a.B[d] / norm
			}
		}
	}

	for c := 0; c < k; c++ {
		out[c].ID = c
		out[c].Centroid = km.Centroids[c]
		n := float64(out[c].Size)
		if out[c].Size > 1 {
			sumSq := 0.0
			for d := 0; d < agents.BeliefDims; d++ {
				sumSq += unitSums[c][d] * unitSums[c][d]
			}
			out[c].Coherence = (sumSq - n) / (n * (n - 1))
		}
		if out[c].Size > 0 {
			out[c].CharismaDensity = float64(charisma[c]) / n
		}
	}
	return out
}
