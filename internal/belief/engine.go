// Package belief implements the per-tick opinion update over the social
// graph. The update is two-phase: a read-only pass accumulates deltas into a
// buffer disjoint from agent state, then a write pass applies them. That
// split is what makes the result independent of worker count and scheduling.
package belief

import (
	"math"
	"sync"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/rng"
)

// Config holds the belief-engine tunables.
type Config struct {
	StepSize float64
	SimFloor float64

	UseMeanField bool
	Workers      int

	// Innovation noise stddev added to x each tick. Breaks symmetric
	// attractors; zero disables it.
	NoiseStd float64

	// Anchoring: influence is scaled by (1 − anchor) where
	// anchor = Base + age/maxAge·AgeWeight + assertiveness·AssertWeight,
	// capped at Max.
	AnchorBase         float64
	AnchorAgeWeight    float64
	AnchorAssertWeight float64
	AnchorMax          float64
	MaxAgeYears        float64

	Seed uint64
}

// RegionField carries the per-region aggregates the engine needs from the
// economy: the mean-field strength and the regional mean wealth used by the
// wealth feedback.
type RegionField struct {
	FieldStrength float64
	MeanWealth    float64
}

// Engine owns the delta buffer so repeated ticks reuse the allocation.
type Engine struct {
	deltas [][agents.BeliefDims]float64
}

// NewEngine returns an engine with an empty delta buffer.
func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) ensureBuffer(n int) {
	if cap(e.deltas) < n {
		e.deltas = make([][agents.BeliefDims]float64, n)
		return
	}
	e.deltas = e.deltas[:n]
	for i := range e.deltas {
		e.deltas[i] = [agents.BeliefDims]float64{}
	}
}

// Update runs one belief tick: delta accumulation (pairwise or mean-field),
// the write pass with innovation noise, then the economic feedback nudges.
func (e *Engine) Update(t *agents.Table, fields []RegionField, cfg Config, tick uint64) {
	ag := t.Agents()
	n := len(ag)
	if n == 0 {
		return
	}
	e.ensureBuffer(n)

	if cfg.UseMeanField {
		e.accumulateMeanField(t, fields, cfg)
	} else {
		e.accumulatePairwise(t, cfg)
	}

	e.applyDeltas(t, cfg, tick)
	e.economicFeedback(t, fields)
}

// anchoring returns the stubbornness of agent a in [0, AnchorMax].
func anchoring(a *agents.Agent, cfg Config) float64 {
	anchor := cfg.AnchorBase +
		a.Age/cfg.MaxAgeYears*cfg.AnchorAgeWeight +
		a.Assertiveness*cfg.AnchorAssertWeight
	if anchor > cfg.AnchorMax {
		anchor = cfg.AnchorMax
	}
	if anchor < 0 {
		anchor = 0
	}
	return anchor
}

// similarityGate is the cosine-based weight throttling influence between
// dissimilar agents, normalized to [0, 1] and floored.
func similarityGate(ai, aj *agents.Agent, floor float64) float64 {
	sim := 0.0
	if ai.BNormSq > 0 && aj.BNormSq > 0 {
		dot := 0.0
		for k := 0; k < agents.BeliefDims; k++ {
			dot += ai.B[k] * aj.B[k]
		}
		sim = dot / math.Sqrt(ai.BNormSq*aj.BNormSq)
	}
	sim = 0.5 * (sim + 1)
	if sim < floor {
		sim = floor
	}
	return sim
}

// languageQuality attenuates cross-lingual influence to a quarter.
func languageQuality(ai, aj *agents.Agent) float64 {
	q := math.Min(ai.Fluency, aj.Fluency)
	if ai.PrimaryLang != aj.PrimaryLang {
		q *= 0.25
	}
	return q
}

// accumulatePairwise walks every live agent's neighbor list. Read-only over
// agent state; each worker writes a disjoint range of the delta buffer.
func (e *Engine) accumulatePairwise(t *agents.Table, cfg Config) {
	ag := t.Agents()
	parallelRanges(len(ag), cfg.Workers, func(_ int, lo, hi int) {
		for i := lo; i < hi; i++ {
			ai := &ag[i]
			if !ai.Alive {
				continue
			}
			scale := 1 - anchoring(ai, cfg)
			var acc [agents.BeliefDims]float64
			for _, jid := range ai.Neighbors {
				aj := &ag[jid]
				if !aj.Alive {
					continue
				}
				s := similarityGate(ai, aj, cfg.SimFloor)
				lq := languageQuality(ai, aj)
				comm := 0.5 * (ai.MComm + aj.MComm)
				// Susceptibility applies asymmetrically to the receiver.
				w := cfg.StepSize * s * lq * comm * ai.MSusceptibility * scale
				for k := 0; k < agents.BeliefDims; k++ {
					acc[k] += w * FastTanh(aj.B[k]-ai.B[k])
				}
			}
			e.deltas[i] = acc
		}
	})
}

// accumulateMeanField nudges each agent toward its region's belief centroid,
// skipping the O(N·k) neighbor walk entirely.
func (e *Engine) accumulateMeanField(t *agents.Table, fields []RegionField, cfg Config) {
	ag := t.Agents()
	numRegions := int(t.NumRegions())

	// Regional centroids over live members.
	centroids := make([][agents.BeliefDims]float64, numRegions)
	counts := make([]int, numRegions)
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		r := int(a.Region)
		for k := 0; k < agents.BeliefDims; k++ {
			centroids[r][k] += a.B[k]
		}
		counts[r]++
	}
	for r := 0; r < numRegions; r++ {
		if counts[r] > 0 {
			for k := 0; k < agents.BeliefDims; k++ {
				centroids[r][k] /= float64(counts[r])
			}
		}
	}

	parallelRanges(len(ag), cfg.Workers, func(_ int, lo, hi int) {
		for i := lo; i < hi; i++ {
			ai := &ag[i]
			if !ai.Alive {
				continue
			}
			r := int(ai.Region)
			strength := 1.0
			if r < len(fields) {
				strength = fields[r].FieldStrength
			}
			w := cfg.StepSize * ai.MSusceptibility * strength * (1 - anchoring(ai, cfg))
			var acc [agents.BeliefDims]float64
			for k := 0; k < agents.BeliefDims; k++ {
				acc[k] = w * FastTanh(centroids[r][k]-ai.B[k])
			}
			e.deltas[i] = acc
		}
	})
}

// applyDeltas is the write pass: x += Δx + noise, B = tanh(x). Noise is
// drawn from per-worker streams keyed by (seed, worker, tick), so the
// trajectory is reproducible for a fixed (seed, worker count) pair.
func (e *Engine) applyDeltas(t *agents.Table, cfg Config, tick uint64) {
	ag := t.Agents()
	parallelRanges(len(ag), cfg.Workers, func(worker, lo, hi int) {
		r := rng.Derive(cfg.Seed, rng.StreamWorkerBase+uint64(worker), tick)
		for i := lo; i < hi; i++ {
			ai := &ag[i]
			if !ai.Alive {
				continue
			}
			for k := 0; k < agents.BeliefDims; k++ {
				dx := e.deltas[i][k]
				if cfg.NoiseStd > 0 {
					dx += r.NormFloat64() * cfg.NoiseStd
				}
				ai.X[k] += dx
				ai.B[k] = FastTanh(ai.X[k])
			}
			ai.RecomputeBeliefNorm()
		}
	})
}

// economicFeedback applies the hardship and wealth nudges after the belief
// update. Shifts are applied to x so they persist through the next tanh
// recomputation; for the small magnitudes involved the effect on B is
// identical to first order.
func (e *Engine) economicFeedback(t *agents.Table, fields []RegionField) {
	ag := t.Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		changed := false
		if a.Hardship > 0.5 {
			a.X[0] -= 0.001 * a.Hardship
			a.X[2] -= 0.001 * a.Hardship
			changed = true
		}
		if int(a.Region) < len(fields) {
			mean := fields[a.Region].MeanWealth
			if mean > 0 && a.Wealth > 1.5*mean {
				rel := a.Wealth / mean
				shift := (1 - a.Openness) * 0.5 * math.Log1p(rel) * 0.001
				a.X[0] += shift
				a.X[2] += shift
				changed = true
			}
		}
		if changed {
			for k := 0; k < agents.BeliefDims; k++ {
				a.B[k] = FastTanh(a.X[k])
			}
			a.RecomputeBeliefNorm()
		}
	}
}

// parallelRanges splits [0, n) into one contiguous chunk per worker and runs
// fn(worker, lo, hi) concurrently. Chunk boundaries depend only on
// (n, workers), never on scheduling.
func parallelRanges(n, workers int, fn func(worker, lo, hi int)) {
	if workers < 1 {
		workers = 1
	}
	if workers == 1 || n < 1024 {
		fn(0, 0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		if lo >= n {
			break
		}
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			fn(w, lo, hi)
		}(w, lo, hi)
	}
	wg.Wait()
}
