// Package migration relocates agents between regions based on push/pull
// attractiveness. Runs in a sequential phase: it mutates Region and the
// neighbor lists, so it never overlaps the belief update.
package migration

import (
	"math/rand"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/econ"
)

// Config holds migration tunables.
type Config struct {
	// Candidates is how many destinations a would-be migrant samples.
	Candidates int
	// AttachAfterMove is how many live agents in the destination the mover
	// links to, keeping migrants socially embedded.
	AttachAfterMove int
	RegionCapacity  float64
}

// DefaultConfig matches the reference dynamics.
func DefaultConfig(regionCapacity float64) Config {
	return Config{Candidates: 5, AttachAfterMove: 3, RegionCapacity: regionCapacity}
}

// Tick iterates live agents, samples destinations for those pushed out, and
// rewrites neighbor lists for movers. The caller must rebuild the region
// index afterwards. Returns the number of moves.
func Tick(tbl *agents.Table, eco *econ.Economy, cfg Config, r *rand.Rand) int {
	numRegions := int(tbl.NumRegions())
	if numRegions < 2 {
		return 0
	}
	pops := tbl.RegionPopulations()

	attract := make([]float64, numRegions)
	for i := range eco.Regions {
		attract[i] = attractiveness(&eco.Regions[i], float64(pops[i]), cfg.RegionCapacity)
	}

	moves := 0
	ag := tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		ageFactor := 1 - (a.Age-25)*(a.Age-25)/2500
		if ageFactor <= 0 {
			continue
		}
		push := eco.Regions[a.Region].Hardship * a.MMobility * ageFactor
		if r.Float64() >= 0.01*push {
			continue
		}

		best := int(a.Region)
		bestScore := attract[a.Region]
		for c := 0; c < cfg.Candidates; c++ {
			d := r.Intn(numRegions)
			if attract[d] > bestScore {
				best = d
				bestScore = attract[d]
			}
		}
		threshold := 0.15 + 0.3*(1-a.Openness)
		if best == int(a.Region) || bestScore-attract[a.Region] <= threshold {
			continue
		}

		move(tbl, a.ID, uint32(best), cfg, r)
		moves++
	}
	return moves
}

// attractiveness scores a destination: welfare pulls, hardship repels,
// development pulls mildly, and overcrowding penalizes.
func attractiveness(reg *econ.Region, pop, capacity float64) float64 {
	crowding := 0.0
	if capacity > 0 && pop > capacity {
		crowding = -0.5 * (pop/capacity - 1)
	}
	return reg.Welfare - 2*reg.Hardship + 0.2*reg.Development + crowding
}

// move relocates one agent: a sociality-dependent fraction of the old
// neighbor list survives; the rest is severed symmetrically, then the mover
// attaches to a few live agents in the destination.
func move(tbl *agents.Table, id, dest uint32, cfg Config, r *rand.Rand) {
	a := tbl.At(id)
	a.Region = dest

	keepFrac := 0.2 + 0.4*a.Sociality
	old := append([]uint32(nil), a.Neighbors...)
	keep := int(keepFrac * float64(len(old)))
	// Shuffle so the retained ties are a uniform subset.
	r.Shuffle(len(old), func(x, y int) { old[x], old[y] = old[y], old[x] })
	for _, nid := range old[keep:] {
		tbl.RemoveEdge(id, nid)
	}

	members := tbl.RegionIndex(dest)
	for attached, tries := 0, 0; attached < cfg.AttachAfterMove && tries < 4*cfg.AttachAfterMove && len(members) > 0; tries++ {
		nid := members[r.Intn(len(members))]
		if nid == id || !tbl.At(nid).Alive {
			continue
		}
		tbl.AddEdge(id, nid)
		attached++
	}
}
