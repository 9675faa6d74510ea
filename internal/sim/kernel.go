// Package sim owns the Kernel: the value that holds the agent table, the
// regional economy, the cohort demographics, and the cluster state, and
// that advances them in a fixed phase order each tick.
package sim

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/belief"
	"github.com/evanwolo/emergent-civ-sim/internal/cluster"
	"github.com/evanwolo/emergent-civ-sim/internal/config"
	"github.com/evanwolo/emergent-civ-sim/internal/demography"
	"github.com/evanwolo/emergent-civ-sim/internal/econ"
	"github.com/evanwolo/emergent-civ-sim/internal/migration"
	"github.com/evanwolo/emergent-civ-sim/internal/rng"
)

// Tick cadence for the slower phases.
const (
	EconomyEvery   = 10
	MigrationEvery = 10
	CleanupEvery   = 5
)

// EventSink receives simulation events. All methods must be cheap; the
// kernel calls them inline from the tick.
type EventSink interface {
	Birth(tick uint64, agentID, region, parent uint32)
	Death(tick uint64, agentID, region uint32, age float64)
	SystemChange(tick uint64, region uint32, from, to string)
	TradeTick(tick uint64, volume float64)
}

// Totals accumulates lifetime counters across ticks.
type Totals struct {
	Births int
	Deaths int
	Moves  int
}

// Kernel is the simulation core. It is a plain value owning all state; no
// global mutable state anywhere.
type Kernel struct {
	cfg      config.KernelConfig
	tbl      *agents.Table
	eco      *econ.Economy
	clusters *cluster.KMeans
	beliefs  *belief.Engine

	generation uint64
	totals     Totals
	warnCount  uint64

	sink EventSink
}

// NewKernel validates the config and builds a fresh simulation.
func NewKernel(cfg config.KernelConfig) (*Kernel, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel{beliefs: belief.NewEngine()}
	k.rebuild(cfg)
	return k, nil
}

// Reset rebuilds the kernel with a new configuration. Generation restarts
// at zero; the event sink survives.
func (k *Kernel) Reset(cfg config.KernelConfig) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	k.rebuild(cfg)
	return nil
}

func (k *Kernel) rebuild(cfg config.KernelConfig) {
	k.cfg = cfg
	k.generation = 0
	k.totals = Totals{}
	k.warnCount = 0

	initRNG := rng.Derive(cfg.Seed, rng.StreamInit, 0)

	regions := econ.GenerateRegions(cfg.Regions, int64(cfg.Seed), initRNG)
	k.eco = econ.New(regions)

	k.tbl = agents.NewTable(cfg.Regions)
	k.initAgents(initRNG)
	agents.BuildSmallWorld(k.tbl, cfg.AvgConnections, cfg.RewireProb, initRNG)

	k.clusters = cluster.NewKMeans(cfg.ClusterK, cfg.ClusterAlpha, cfg.ReassignEvery, k.tbl, initRNG)
}

// initAgents seeds the starting population: uniform region and language,
// normal personality traits, beliefs drawn in x-space, and multipliers
// derived from personality.
func (k *Kernel) initAgents(r *rand.Rand) {
	for i := uint32(0); i < k.cfg.Population; i++ {
		a := agents.Agent{
			Region:      uint32(r.Intn(int(k.cfg.Regions))),
			Female:      r.Float64() < 0.5,
			Age:         clampf(30+r.NormFloat64()*15, 0, 90),
			ParentA:     agents.NoAgent,
			ParentB:     agents.NoAgent,
			LineageID:   i,
			PrimaryLang: uint8(r.Intn(agents.NumLanguages)),
			Dialect:     uint8(r.Intn(256)),
			Fluency:     clampf(0.7+0.3*(r.Float64()-0.5), 0.3, 1.0),
			MComm:       1.0,
			Sector:      uint8(r.Intn(econ.NumGoods)),
		}
		a.Openness = clampf(0.5+r.NormFloat64()*0.15, 0, 1)
		a.Conformity = clampf(0.5+r.NormFloat64()*0.15, 0, 1)
		a.Assertiveness = clampf(0.5+r.NormFloat64()*0.15, 0, 1)
		a.Sociality = clampf(0.5+r.NormFloat64()*0.15, 0, 1)

		for d := 0; d < agents.BeliefDims; d++ {
			a.X[d] = r.NormFloat64() * 0.75
			a.B[d] = belief.FastTanh(a.X[d])
		}
		a.RecomputeBeliefNorm()

		a.MSusceptibility = clampf(0.7+0.6*(a.Openness-0.5), 0.4, 1.2)
		a.MMobility = 0.8 + 0.4*a.Sociality
		a.Wealth = math.Exp(r.NormFloat64() * 0.5)
		a.Productivity = clampf(1+r.NormFloat64()*0.2, 0.2, 2)

		if _, err := k.tbl.Add(a); err != nil {
			// Regions are drawn in range; this cannot happen.
			panic(err)
		}
	}
}

// SetEventSink installs the event log adapter; nil disables events.
func (k *Kernel) SetEventSink(s EventSink) {
	k.sink = s
}

// Step advances the simulation by one tick. Phase order is fixed: economy,
// demography, migration, beliefs, clustering, cleanup. Numeric and bounds
// errors bubble out and stop the run.
func (k *Kernel) Step() error {
	tick := k.generation + 1

	// (a) Economy.
	if tick%EconomyEvery == 0 {
		centroids := k.regionCentroids()
		transitions := k.eco.Tick(k.tbl, centroids, rng.Derive(k.cfg.Seed, rng.StreamEconomy, tick))
		if k.cfg.Strict {
			if err := econ.CheckTradeConservation(k.eco.Regions); err != nil {
				return &NumericError{What: err.Error()}
			}
		}
		if k.sink != nil {
			k.sink.TradeTick(tick, k.eco.TradeVolume)
			for _, tr := range transitions {
				k.sink.SystemChange(tick, tr.Region, tr.From.String(), tr.To.String())
			}
		}
	}

	// (b) Demography.
	if k.cfg.DemographyEnabled {
		st := demography.Tick(k.tbl, k.eco, demography.Config{
			TicksPerYear:   k.cfg.TicksPerYear,
			MaxAgeYears:    k.cfg.MaxAgeYears,
			RegionCapacity: k.cfg.RegionCapacity,
			MaxPopulation:  k.cfg.MaxPopulation,
			FertilityBase:  0.08,
		}, rng.Derive(k.cfg.Seed, rng.StreamDemography, tick), k.demographySink(tick))
		k.totals.Births += st.Births
		k.totals.Deaths += st.Deaths
		k.tbl.RebuildRegionIndex()
	}

	// (c) Migration.
	if tick%MigrationEvery == 0 {
		moves := migration.Tick(k.tbl, k.eco, migration.DefaultConfig(k.cfg.RegionCapacity),
			rng.Derive(k.cfg.Seed, rng.StreamMigration, tick))
		k.totals.Moves += moves
		k.tbl.RebuildRegionIndex()
	}

	// (d) Beliefs.
	k.beliefs.Update(k.tbl, k.regionFields(), belief.Config{
		StepSize:           k.cfg.StepSize,
		SimFloor:           k.cfg.SimFloor,
		UseMeanField:       k.cfg.UseMeanField,
		Workers:            k.cfg.Workers,
		NoiseStd:           k.cfg.InnovationNoise,
		AnchorBase:         k.cfg.AnchorBase,
		AnchorAgeWeight:    k.cfg.AnchorAgeWeight,
		AnchorAssertWeight: k.cfg.AnchorAssertWeight,
		AnchorMax:          k.cfg.AnchorMax,
		MaxAgeYears:        k.cfg.MaxAgeYears,
		Seed:               k.cfg.Seed,
	}, tick)
	if err := k.validateBeliefs(); err != nil {
		return err
	}

	// (e) Clustering.
	k.clusters.Tick(k.tbl, tick, rng.Derive(k.cfg.Seed, rng.StreamCluster, tick))

	// (f) Cleanup.
	if tick%CleanupEvery == 0 {
		k.tbl.Compact()
		if k.cfg.Strict {
			if err := k.tbl.CheckSymmetry(); err != nil {
				return err
			}
		}
	}

	k.generation = tick
	return nil
}

// StepN advances n ticks, stopping at the first error.
func (k *Kernel) StepN(n int) error {
	for i := 0; i < n; i++ {
		if err := k.Step(); err != nil {
			return err
		}
	}
	return nil
}

// validateBeliefs enforces the post-update invariant: every live belief is
// finite and in [-1, 1]. Strict mode fails; release clamps and warns.
func (k *Kernel) validateBeliefs() error {
	ag := k.tbl.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		for d := 0; d < agents.BeliefDims; d++ {
			b := a.B[d]
			if math.IsNaN(b) || math.IsInf(b, 0) || b < -1 || b > 1 {
				if k.cfg.Strict {
					return &NumericError{What: "belief", Value: b}
				}
				if math.IsNaN(b) || math.IsInf(b, 0) {
					a.X[d] = 0
					a.B[d] = 0
				} else if b > 1 {
					a.B[d] = 1
				} else {
					a.B[d] = -1
				}
				a.RecomputeBeliefNorm()
				k.warnCount++
			}
		}
	}
	if k.warnCount > 0 && k.warnCount%1000 == 0 {
		slog.Warn("numeric clamps accumulating", "count", k.warnCount)
	}
	return nil
}

// regionCentroids computes the mean belief vector per region.
func (k *Kernel) regionCentroids() [][agents.BeliefDims]float64 {
	n := int(k.tbl.NumRegions())
	centroids := make([][agents.BeliefDims]float64, n)
	for r := 0; r < n; r++ {
		ids := k.tbl.RegionIndex(uint32(r))
		if len(ids) == 0 {
			continue
		}
		for _, id := range ids {
			a := k.tbl.At(id)
			for d := 0; d < agents.BeliefDims; d++ {
				centroids[r][d] += a.B[d]
			}
		}
		for d := 0; d < agents.BeliefDims; d++ {
			centroids[r][d] /= float64(len(ids))
		}
	}
	return centroids
}

// regionFields assembles the per-region inputs the belief engine needs.
// Field strength follows system stability; mean wealth is recomputed fresh
// so the wealth feedback tracks intra-economy-tick drift.
func (k *Kernel) regionFields() []belief.RegionField {
	n := int(k.tbl.NumRegions())
	fields := make([]belief.RegionField, n)
	sums := make([]float64, n)
	counts := make([]int, n)
	ag := k.tbl.Agents()
	for i := range ag {
		if ag[i].Alive {
			sums[ag[i].Region] += ag[i].Wealth
			counts[ag[i].Region]++
		}
	}
	for r := 0; r < n; r++ {
		fields[r].FieldStrength = 0.5 + 0.5*k.eco.Regions[r].SystemStability
		if counts[r] > 0 {
			fields[r].MeanWealth = sums[r] / float64(counts[r])
		}
	}
	return fields
}

// demographySink adapts the kernel's EventSink to demography's callback
// shape, closing over the tick.
func (k *Kernel) demographySink(tick uint64) demography.EventSink {
	if k.sink == nil {
		return nil
	}
	return &tickSink{k: k, tick: tick}
}

type tickSink struct {
	k    *Kernel
	tick uint64
}

func (s *tickSink) Birth(agentID, region, parent uint32) {
	s.k.sink.Birth(s.tick, agentID, region, parent)
}

func (s *tickSink) Death(agentID, region uint32, age float64) {
	s.k.sink.Death(s.tick, agentID, region, age)
}

// Accessors used by the shell, checkpointing, and the HTTP observer.

func (k *Kernel) Generation() uint64 { return k.generation }
func (k *Kernel) Config() config.KernelConfig { return k.cfg }
func (k *Kernel) Table() *agents.Table { return k.tbl }
func (k *Kernel) Economy() *econ.Economy { return k.eco }
func (k *Kernel) Clusters() *cluster.KMeans { return k.clusters }
func (k *Kernel) LifetimeTotals() Totals { return k.totals }
func (k *Kernel) WarnCount() uint64 { return k.warnCount }

// ClusterRNG returns the deterministic stream used for cluster reseeding
// at the current generation.
func (k *Kernel) ClusterRNG() *rand.Rand {
	return rng.Derive(k.cfg.Seed, rng.StreamCluster, k.generation)
}

// ReplaceClusters swaps the cluster state (shell `cluster kmeans K`).
func (k *Kernel) ReplaceClusters(km *cluster.KMeans) {
	k.clusters = km
}

// AdoptCheckpoint installs checkpointed state: generation, seed, agent
// table, and the fully restored regional economy. The kernel config is
// patched to match the file so subsequent ticks derive the right RNG
// streams; clusters are reseeded since they are not part of the format.
func (k *Kernel) AdoptCheckpoint(generation, seed uint64, tbl *agents.Table, regions []econ.Region) {
	k.generation = generation
	k.cfg.Seed = seed
	k.cfg.Regions = uint32(len(regions))
	k.tbl = tbl
	k.eco = econ.New(regions)
	initRNG := rng.Derive(k.cfg.Seed, rng.StreamInit, generation)
	k.clusters = cluster.NewKMeans(k.cfg.ClusterK, k.cfg.ClusterAlpha, k.cfg.ReassignEvery, k.tbl, initRNG)
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
