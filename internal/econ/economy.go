package econ

import (
	"math"
	"math/rand"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

// Economy owns the regional economic state and runs the per-econ-tick
// update. The kernel calls Tick every 10 simulation ticks.
type Economy struct {
	Regions      []Region
	TradeRate    float64
	PriceEpsilon float64

	// TradeVolume is the total shipped volume of the last economy tick.
	TradeVolume float64

	// WarnCount counts clamped numeric anomalies in release mode.
	WarnCount uint64

	// Scratch buffers reused across ticks.
	sectorProductivity [][NumGoods]float64
	meanWealth         []float64
}

// redistribution is the fraction of regional income pooled and shared
// equally, per system.
var redistribution = [numSystems]float64{
	SystemMixed:       0.10,
	SystemCooperative: 0.25,
	SystemMarket:      0.00,
	SystemFeudal:      0.00,
	SystemPlanned:     0.35,
}

// Transition records an economic-system change for the event log.
type Transition struct {
	Region uint32
	From   System
	To     System
}

// New wraps generated regions into an Economy with default rates.
func New(regions []Region) *Economy {
	return &Economy{
		Regions:      regions,
		TradeRate:    0.1,
		PriceEpsilon: 0.05,
	}
}

// MeanWealth returns the cached per-region mean wealth from the last tick.
// Valid after the first Tick; zeros before.
func (e *Economy) MeanWealth() []float64 {
	if e.meanWealth == nil {
		e.meanWealth = make([]float64, len(e.Regions))
	}
	return e.meanWealth
}

// Tick runs the full economy update: production, demand, trade diffusion,
// prices, specialization drift, agent income, hardship, and system
// transitions. centroids are the per-region mean belief vectors.
func (e *Economy) Tick(tbl *agents.Table, centroids [][agents.BeliefDims]float64, r *rand.Rand) []Transition {
	pops := tbl.RegionPopulations()

	e.produce(pops)
	e.computeDemand(pops)
	e.TradeVolume = diffuseTrade(e.Regions, e.TradeRate)
	e.updatePrices()
	e.driftSpecialization()
	e.payIncome(tbl)
	e.computeHardship(tbl, pops)
	e.updateRegionAggregates(tbl)
	return e.transitionSystems(centroids, r)
}

// produce fills Production per the endowment formula.
func (e *Economy) produce(pops []uint32) {
	for i := range e.Regions {
		reg := &e.Regions[i]
		pop := float64(pops[i])
		eff := reg.Efficiency * systemTable[reg.System].EffMod
		for g := 0; g < NumGoods; g++ {
			reg.Production[g] = reg.Endowment[g] * pop * (1 + reg.Specialization[g]) *
				tech[g] * eff * (1 + 0.2*reg.Development) * (1 - reg.War)
			if reg.Production[g] < 0 {
				reg.Production[g] = 0
			}
		}
	}
}

// computeDemand fills Demand = per-capita subsistence × population.
func (e *Economy) computeDemand(pops []uint32) {
	for i := range e.Regions {
		reg := &e.Regions[i]
		percap := reg.perCapitaDemand()
		pop := float64(pops[i])
		for g := 0; g < NumGoods; g++ {
			reg.Demand[g] = percap[g] * pop
		}
	}
}

// updatePrices nudges prices toward scarcity: up by ε when demand exceeds
// post-trade supply, down by ε/2 otherwise, clamped to [0.01, 100].
func (e *Economy) updatePrices() {
	for i := range e.Regions {
		reg := &e.Regions[i]
		for g := 0; g < NumGoods; g++ {
			if reg.Demand[g] > reg.Available[g] {
				reg.Prices[g] *= 1 + e.PriceEpsilon
			} else {
				reg.Prices[g] *= 1 - 0.5*e.PriceEpsilon
			}
			if reg.Prices[g] < 0.01 {
				reg.Prices[g] = 0.01
			}
			if reg.Prices[g] > 100 {
				reg.Prices[g] = 100
			}
		}
	}
}

// driftSpecialization rewards goods a region exports and slowly erodes the
// rest, within [-0.5, 0.3].
func (e *Economy) driftSpecialization() {
	for i := range e.Regions {
		reg := &e.Regions[i]
		for g := 0; g < NumGoods; g++ {
			if reg.Production[g] > reg.Demand[g] {
				reg.Specialization[g] += 0.001
			} else {
				reg.Specialization[g] -= 0.0005
			}
			if reg.Specialization[g] > 0.3 {
				reg.Specialization[g] = 0.3
			}
			if reg.Specialization[g] < -0.5 {
				reg.Specialization[g] = -0.5
			}
		}
	}
}

// payIncome distributes each (region, sector) production pot by
// productivity share, then charges living costs. Wealth never goes
// negative.
func (e *Economy) payIncome(tbl *agents.Table) {
	n := len(e.Regions)
	if cap(e.sectorProductivity) < n {
		e.sectorProductivity = make([][NumGoods]float64, n)
	}
	e.sectorProductivity = e.sectorProductivity[:n]
	for i := range e.sectorProductivity {
		e.sectorProductivity[i] = [NumGoods]float64{}
	}

	ag := tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		e.sectorProductivity[a.Region][a.Sector] += a.Productivity
	}

	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		reg := &e.Regions[a.Region]
		sum := e.sectorProductivity[a.Region][a.Sector]
		income := 0.0
		if sum > 0 {
			income = (a.Productivity / sum) * reg.Production[a.Sector] * reg.Prices[a.Sector]
		}
		a.Income = income
	}

	// Redistribution pools a system-dependent share of income.
	pools := make([]float64, n)
	counts := make([]int, n)
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		frac := redistribution[e.Regions[a.Region].System]
		pools[a.Region] += a.Income * frac
		a.Income *= 1 - frac
		counts[a.Region]++
	}
	for i := range ag {
		a := &ag[i]
		if !a.Alive || counts[a.Region] == 0 {
			continue
		}
		a.Income += pools[a.Region] / float64(counts[a.Region])
	}

	// Apply income minus living cost.
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		reg := &e.Regions[a.Region]
		percap := reg.perCapitaDemand()
		cost := 0.0
		for g := 0; g < NumGoods; g++ {
			cost += percap[g] * reg.Prices[g]
		}
		a.Wealth += a.Income - 0.5*cost
		if a.Wealth < 0 {
			a.Wealth = 0
		}
		if math.IsNaN(a.Wealth) || math.IsInf(a.Wealth, 0) {
			a.Wealth = 0
			e.WarnCount++
		}
	}
}

// computeHardship scores the development-weighted shortfall in
// food/energy/tools/services per agent, shaded by relative wealth, and
// rolls the result into the regional average.
func (e *Economy) computeHardship(tbl *agents.Table, pops []uint32) {
	n := len(e.Regions)
	if cap(e.meanWealth) < n {
		e.meanWealth = make([]float64, n)
	}
	e.meanWealth = e.meanWealth[:n]
	for i := range e.meanWealth {
		e.meanWealth[i] = 0
	}

	ag := tbl.Agents()
	for i := range ag {
		if ag[i].Alive {
			e.meanWealth[ag[i].Region] += ag[i].Wealth
		}
	}
	for i := range e.meanWealth {
		if pops[i] > 0 {
			e.meanWealth[i] /= float64(pops[i])
		}
	}

	// Regional base shortfall.
	base := make([]float64, n)
	for i := range e.Regions {
		reg := &e.Regions[i]
		weights := [4]float64{1, 1, 0.5 * reg.Development, 0.5 * reg.Development}
		var acc, wsum float64
		for g := GoodFood; g <= GoodServices; g++ {
			w := weights[g]
			if w <= 0 {
				continue
			}
			ratio := 1.0
			if reg.Demand[g] > 0 {
				ratio = reg.Available[g] / reg.Demand[g]
				if ratio > 1 {
					ratio = 1
				}
				if ratio < 0 {
					ratio = 0
				}
			}
			acc += w * (1 - ratio)
			wsum += w
		}
		if wsum > 0 {
			base[i] = acc / wsum
		}
	}

	sums := make([]float64, n)
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		h := base[a.Region]
		if mean := e.meanWealth[a.Region]; mean > 0 {
			// The poor feel shortfalls first.
			rel := a.Wealth / mean
			if rel > 2 {
				rel = 2
			}
			h *= 1.5 - 0.5*rel
		}
		if h > 1 {
			h = 1
		}
		if h < 0 {
			h = 0
		}
		a.Hardship = h
		sums[a.Region] += h
	}
	for i := range e.Regions {
		if pops[i] > 0 {
			e.Regions[i].Hardship = sums[i] / float64(pops[i])
		} else {
			e.Regions[i].Hardship = 0
		}
	}
}

// updateRegionAggregates refreshes welfare, inequality (true Gini over
// member wealth, never derived from the system tag), and development drift.
func (e *Economy) updateRegionAggregates(tbl *agents.Table) {
	for i := range e.Regions {
		reg := &e.Regions[i]

		members := tbl.RegionIndex(reg.ID)
		wealth := make([]float64, 0, len(members))
		for _, id := range members {
			wealth = append(wealth, tbl.At(id).Wealth)
		}
		reg.Inequality = Gini(wealth)

		reg.Welfare = 1 - reg.Hardship + 0.2*reg.Development
		if reg.Welfare < 0 {
			reg.Welfare = 0
		}
		if reg.Welfare > 2 {
			reg.Welfare = 2
		}

		// Development grows when tools and services needs are met.
		met := 0.0
		for _, g := range [...]int{GoodTools, GoodServices} {
			if reg.Demand[g] > 0 && reg.Available[g] >= reg.Demand[g] {
				met++
			}
		}
		reg.Development += 0.002*met - 0.001*reg.Hardship
		if reg.Development < 0 {
			reg.Development = 0
		}
		if reg.Development > 2 {
			reg.Development = 2
		}
	}
}

// desiredSystem maps a regional belief centroid to the system it favors.
// Axis 0 is Authority↔Liberty, axis 2 is Hierarchy↔Equality.
func desiredSystem(c [agents.BeliefDims]float64) System {
	authority, hierarchy := c[0], c[2]
	switch {
	case authority < -0.3 && hierarchy > 0.3:
		return SystemPlanned
	case authority < -0.3 && hierarchy < -0.3:
		return SystemFeudal
	case authority > 0.3 && hierarchy > 0.3:
		return SystemCooperative
	case authority > 0.3 && hierarchy < 0:
		return SystemMarket
	default:
		return SystemMixed
	}
}

// transitionSystems rolls probabilistic economic-system changes. No
// instantaneous flips: per-tick probability stays within [0.2%, 5%] when
// conditions are met, damped by institutional inertia.
func (e *Economy) transitionSystems(centroids [][agents.BeliefDims]float64, r *rand.Rand) []Transition {
	var out []Transition
	for i := range e.Regions {
		reg := &e.Regions[i]
		var centroid [agents.BeliefDims]float64
		if i < len(centroids) {
			centroid = centroids[i]
		}
		want := desiredSystem(centroid)

		if want == reg.System {
			reg.SystemStability += 0.01
			if reg.SystemStability > 1 {
				reg.SystemStability = 1
			}
			continue
		}

		pressure := 0.3*reg.Hardship + 0.3*reg.Inequality + 0.4
		inertia := systemTable[reg.System].Inertia * reg.SystemStability
		prob := (0.002 + 0.048*pressure) * (1 - inertia)
		if prob < 0.002 {
			prob = 0.002
		}
		if prob > 0.05 {
			prob = 0.05
		}
		if r.Float64() < prob {
			out = append(out, Transition{Region: reg.ID, From: reg.System, To: want})
			reg.System = want
			reg.SystemStability = 0.2
		} else {
			reg.SystemStability -= 0.005
			if reg.SystemStability < 0 {
				reg.SystemStability = 0
			}
		}
	}
	return out
}
