package cluster

import (
	"math"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

// DBSCANResult labels every live agent: cluster id ≥ 0, or Noise.
type DBSCANResult struct {
	// Labels maps agent id → cluster id, Noise, or -2 (unvisited) for dead slots.
	Labels      []int32
	NumClusters int
}

const (
	Noise     int32 = -1
	unvisited int32 = -2
)

// DBSCAN runs density-based clustering over the live agents' belief
// vectors. Neighbor queries use a grid hashed on cells of side eps, so only
// 3⁴ adjacent cells are scanned per query.
func DBSCAN(tbl *agents.Table, eps float64, minPts int) DBSCANResult {
	ag := tbl.Agents()
	n := len(ag)
	labels := make([]int32, n)
	for i := range labels {
		labels[i] = unvisited
	}

	grid := buildGrid(tbl, eps)
	epsSq := eps * eps

	next := int32(0)
	for i := range ag {
		if !ag[i].Alive || labels[i] != unvisited {
			continue
		}
		neighbors := grid.query(ag, ag[i].B, epsSq)
		if len(neighbors) < minPts {
			labels[i] = Noise
			continue
		}
		cid := next
		next++
		labels[i] = cid

		// Expand the cluster with a work queue.
		queue := append([]uint32(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == Noise {
				labels[j] = cid
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cid
			jn := grid.query(ag, ag[j].B, epsSq)
			if len(jn) >= minPts {
				queue = append(queue, jn...)
			}
		}
	}

	return DBSCANResult{Labels: labels, NumClusters: int(next)}
}

// beliefGrid buckets live agents by quantized belief coordinates.
type beliefGrid struct {
	cell    float64
	buckets map[[agents.BeliefDims]int16][]uint32
}

func buildGrid(tbl *agents.Table, cell float64) *beliefGrid {
	g := &beliefGrid{cell: cell, buckets: make(map[[agents.BeliefDims]int16][]uint32)}
	ag := tbl.Agents()
	for i := range ag {
		if !ag[i].Alive {
			continue
		}
		key := g.key(ag[i].B)
		g.buckets[key] = append(g.buckets[key], ag[i].ID)
	}
	return g
}

func (g *beliefGrid) key(b [agents.BeliefDims]float64) [agents.BeliefDims]int16 {
	var k [agents.BeliefDims]int16
	for d := 0; d < agents.BeliefDims; d++ {
		k[d] = int16(math.Floor(b[d] / g.cell))
	}
	return k
}

// query returns the ids within eps of b, including b's own agent.
func (g *beliefGrid) query(ag []agents.Agent, b [agents.BeliefDims]float64, epsSq float64) []uint32 {
	center := g.key(b)
	var out []uint32
	var probe [agents.BeliefDims]int16
	for d0 := int16(-1); d0 <= 1; d0++ {
		for d1 := int16(-1); d1 <= 1; d1++ {
			for d2 := int16(-1); d2 <= 1; d2++ {
				for d3 := int16(-1); d3 <= 1; d3++ {
					probe = [agents.BeliefDims]int16{center[0] + d0, center[1] + d1, center[2] + d2, center[3] + d3}
					for _, id := range g.buckets[probe] {
						dist := 0.0
						for d := 0; d < agents.BeliefDims; d++ {
							dd := ag[id].B[d] - b[d]
							dist += dd * dd
						}
						if dist <= epsSq {
							out = append(out, id)
						}
					}
				}
			}
		}
	}
	return out
}
