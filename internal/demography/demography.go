// Package demography implements cohort-based birth and death accounting.
// Mortality and fertility are sampled per (region, age-band, sex) cohort
// with exact binomial counts, so RNG draws scale with the number of cohorts
// rather than the population. Individual agents are touched only at the
// death-sampling and birth-materialization points.
package demography

import (
	"math"
	"math/rand"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/belief"
	"github.com/evanwolo/emergent-civ-sim/internal/econ"
	"github.com/evanwolo/emergent-civ-sim/internal/rng"
)

// ageBand is a half-open age interval [Lo, Hi) with its annual mortality.
type ageBand struct {
	Lo, Hi    float64
	Mortality float64 // annual probability of death
}

var bands = []ageBand{
	{0, 5, 0.01},
	{5, 15, 0.001},
	{15, 50, 0.002},
	{50, 70, 0.01},
	{70, 85, 0.05},
	{85, 90, 0.15},
	{90, math.MaxFloat64, 1.0},
}

// fertile brackets the child-bearing band.
const (
	fertileLo   = 15.0
	fertileHi   = 50.0
	fertileBand = 2 // index into bands
)

// Config holds demographic pacing parameters.
type Config struct {
	TicksPerYear   int
	MaxAgeYears    float64
	RegionCapacity float64
	MaxPopulation  uint32

	// FertilityBase is the annual birth probability per fertile woman
	// before regional modifiers.
	FertilityBase float64
}

// Stats summarizes one demography tick.
type Stats struct {
	Deaths int
	Births int
}

// EventSink receives birth and death notifications. May be nil.
type EventSink interface {
	Birth(agentID, region, parent uint32)
	Death(agentID, region uint32, age float64)
}

// cohort aggregates the live member ids of one (region, band, sex) cell.
type cohort struct {
	members []uint32
}

// Tick ages the population, samples cohort mortality and fertility, and
// materializes individual births. The caller must rebuild the region index
// afterwards.
func Tick(tbl *agents.Table, eco *econ.Economy, cfg Config, r *rand.Rand, sink EventSink) Stats {
	var st Stats

	// Aging.
	dt := 1.0 / float64(cfg.TicksPerYear)
	ag := tbl.Agents()
	for i := range ag {
		if ag[i].Alive {
			ag[i].Age += dt
		}
	}

	cohorts, meanWealth := buildCohorts(tbl)

	st.Deaths = sampleMortality(tbl, eco, cohorts, cfg, r, sink)
	st.Births = sampleFertility(tbl, eco, cohorts, meanWealth, cfg, r, sink)
	return st
}

// buildCohorts rebuilds the cohort table from the agent table. Rebuilding
// every tick keeps cohort totals reconciled to individual counts by
// construction. Also returns per-region mean wealth for the fertility
// modifier.
func buildCohorts(tbl *agents.Table) ([]cohort, []float64) {
	numRegions := int(tbl.NumRegions())
	cohorts := make([]cohort, numRegions*len(bands)*2)
	meanWealth := make([]float64, numRegions)
	counts := make([]int, numRegions)

	ag := tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		b := bandOf(a.Age)
		idx := cohortIndex(int(a.Region), b, a.Female)
		cohorts[idx].members = append(cohorts[idx].members, a.ID)
		meanWealth[a.Region] += a.Wealth
		counts[a.Region]++
	}
	for i := range meanWealth {
		if counts[i] > 0 {
			meanWealth[i] /= float64(counts[i])
		}
	}
	return cohorts, meanWealth
}

func bandOf(age float64) int {
	for i, b := range bands {
		if age < b.Hi {
			return i
		}
	}
	return len(bands) - 1
}

func cohortIndex(region, band int, female bool) int {
	idx := (region*len(bands) + band) * 2
	if female {
		idx++
	}
	return idx
}

// tickProb converts an annual probability to a per-tick one:
// p_tick = 1 − (1 − p_year)^(1/ticksPerYear). Annual rates are capped just
// below 1 so the oldest band dies out within the year rather than
// instantaneously.
func tickProb(annual float64, ticksPerYear int) float64 {
	if annual > 0.9999 {
		annual = 0.9999
	}
	if annual <= 0 {
		return 0
	}
	return 1 - math.Pow(1-annual, 1/float64(ticksPerYear))
}

// sampleMortality draws a binomial death count per cohort and realizes it
// by flagging uniformly sampled members dead.
func sampleMortality(tbl *agents.Table, eco *econ.Economy, cohorts []cohort, cfg Config, r *rand.Rand, sink EventSink) int {
	deaths := 0
	scratch := make([]int, 0, 64)
	for region := 0; region < int(tbl.NumRegions()); region++ {
		reg := &eco.Regions[region]
		// Development and welfare push mortality down.
		mod := 1.3 - 0.25*reg.Development - 0.15*(reg.Welfare-1)
		if mod < 0.5 {
			mod = 0.5
		}
		if mod > 1.5 {
			mod = 1.5
		}
		for b := range bands {
			for _, female := range [2]bool{false, true} {
				c := &cohorts[cohortIndex(region, b, female)]
				n := len(c.members)
				if n == 0 {
					continue
				}
				annual := bands[b].Mortality
				if annual < 1 {
					// Development and welfare never rescue the last band.
					annual *= mod
				}
				p := tickProb(annual, cfg.TicksPerYear)
				k := rng.Binomial(r, n, p)
				if k == 0 {
					continue
				}
				if cap(scratch) < k {
					scratch = make([]int, k)
				}
				scratch = scratch[:k]
				drawn := rng.SampleWithoutReplacement(r, n, k, scratch)
				for _, pick := range scratch[:drawn] {
					id := c.members[pick]
					a := tbl.At(id)
					if !a.Alive {
						continue
					}
					tbl.MarkDead(id)
					deaths++
					if sink != nil {
						sink.Death(id, a.Region, a.Age)
					}
				}
			}
		}
	}

	// Hard cap on age regardless of band sampling.
	ag := tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if a.Alive && a.Age > cfg.MaxAgeYears {
			tbl.MarkDead(a.ID)
			deaths++
			if sink != nil {
				sink.Death(a.ID, a.Region, a.Age)
			}
		}
	}
	return deaths
}

// sampleFertility draws binomial birth counts per fertile female cohort and
// materializes each birth from a sampled mother.
func sampleFertility(tbl *agents.Table, eco *econ.Economy, cohorts []cohort, meanWealth []float64, cfg Config, r *rand.Rand, sink EventSink) int {
	births := 0
	for region := 0; region < int(tbl.NumRegions()); region++ {
		reg := &eco.Regions[region]
		pop := len(tbl.RegionIndex(uint32(region)))

		// Tradition↔Progress centroid: tradition-leaning regions bear more
		// children, development fewer, crowding caps growth.
		traditionalism := 0.0
		if c := regionBeliefCentroid(tbl, uint32(region)); c[1] < 0 {
			traditionalism = -c[1]
		}
		annual := cfg.FertilityBase *
			(1 + 0.4*traditionalism) *
			clampf(1.2-0.4*reg.Development, 0.4, 1.2) *
			clampf(1-float64(pop)/cfg.RegionCapacity, 0, 1)
		p := tickProb(annual, cfg.TicksPerYear)
		if p <= 0 {
			continue
		}

		c := &cohorts[cohortIndex(region, fertileBand, true)]
		n := len(c.members)
		if n == 0 {
			continue
		}
		k := rng.Binomial(r, n, p)
		for b := 0; b < k; b++ {
			if uint32(tbl.Live()) >= cfg.MaxPopulation {
				return births
			}
			mother := tbl.At(c.members[r.Intn(n)])
			if !mother.Alive {
				continue
			}
			// Relative wealth of the mother gates the birth.
			if mean := meanWealth[region]; mean > 0 {
				rel := mother.Wealth / mean
				if rel > 2 {
					rel = 2
				}
				if r.Float64() > clampf(0.6+0.2*rel, 0.3, 1) {
					continue
				}
			}
			if materializeBirth(tbl, mother, cfg, r, sink) {
				births++
			}
		}
	}
	return births
}

func regionBeliefCentroid(tbl *agents.Table, region uint32) [agents.BeliefDims]float64 {
	var c [agents.BeliefDims]float64
	ids := tbl.RegionIndex(region)
	if len(ids) == 0 {
		return c
	}
	for _, id := range ids {
		a := tbl.At(id)
		for k := 0; k < agents.BeliefDims; k++ {
			c[k] += a.B[k]
		}
	}
	for k := 0; k < agents.BeliefDims; k++ {
		c[k] /= float64(len(ids))
	}
	return c
}

// materializeBirth creates one newborn: beliefs blended half-and-half from
// the parents with N(0, 0.2) mutation, personality blended with N(0, 0.05),
// mother's language at fluency 0.5, wired to the mother and three of her
// neighbors.
func materializeBirth(tbl *agents.Table, mother *agents.Agent, cfg Config, r *rand.Rand, sink EventSink) bool {
	// Father: a live male neighbor of the mother; fall back to asexual.
	father := mother
	fatherID := agents.NoAgent
	males := make([]uint32, 0, len(mother.Neighbors))
	for _, nid := range mother.Neighbors {
		na := tbl.At(nid)
		if na.Alive && !na.Female {
			males = append(males, nid)
		}
	}
	if len(males) > 0 {
		fatherID = males[r.Intn(len(males))]
		father = tbl.At(fatherID)
	}

	child := agents.Agent{
		Region:      mother.Region,
		Female:      r.Float64() < 0.5,
		Age:         0,
		ParentA:     mother.ID,
		ParentB:     fatherID,
		LineageID:   mother.LineageID,
		PrimaryLang: mother.PrimaryLang,
		Dialect:     mother.Dialect,
		Fluency:     0.5,
		Sector:      mother.Sector,
		MComm:       1.0,
	}

	child.Openness = clampf(0.5*(mother.Openness+father.Openness)+r.NormFloat64()*0.05, 0, 1)
	child.Conformity = clampf(0.5*(mother.Conformity+father.Conformity)+r.NormFloat64()*0.05, 0, 1)
	child.Assertiveness = clampf(0.5*(mother.Assertiveness+father.Assertiveness)+r.NormFloat64()*0.05, 0, 1)
	child.Sociality = clampf(0.5*(mother.Sociality+father.Sociality)+r.NormFloat64()*0.05, 0, 1)

	for k := 0; k < agents.BeliefDims; k++ {
		child.X[k] = 0.5*(mother.X[k]+father.X[k]) + r.NormFloat64()*0.2
		child.B[k] = belief.FastTanh(child.X[k])
	}
	child.RecomputeBeliefNorm()

	child.MSusceptibility = clampf(0.7+0.6*(child.Openness-0.5), 0.4, 1.2)
	child.MMobility = 0.8 + 0.4*child.Sociality
	child.Productivity = clampf(1+r.NormFloat64()*0.2, 0.2, 2)

	motherID := mother.ID
	motherRegion := mother.Region
	inherited := append([]uint32(nil), mother.Neighbors...)

	// Add may grow the table's backing array; use ids from here on.
	id, err := tbl.Add(child)
	if err != nil {
		return false
	}

	// Wire into the graph: mother plus up to three of her neighbors.
	tbl.AddEdge(id, motherID)
	attached := 0
	for _, nid := range inherited {
		if attached >= 3 || nid == id {
			continue
		}
		if tbl.At(nid).Alive {
			tbl.AddEdge(id, nid)
			attached++
		}
	}

	if sink != nil {
		sink.Birth(id, motherRegion, motherID)
	}
	return true
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
