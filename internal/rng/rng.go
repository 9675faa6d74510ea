// Package rng provides deterministic random substreams and the discrete
// samplers the demographic model needs. Every parallel worker and every
// sequential phase draws from its own stream derived from
// (master seed, stream id, tick), so trajectories are reproducible for a
// fixed (seed, worker count) pair.
package rng

import (
	"math"
	"math/rand"
)

// Stream identifiers for the sequential phases. Workers inside the belief
// engine use their worker index offset by StreamWorkerBase.
const (
	StreamInit       uint64 = 0x01
	StreamDemography uint64 = 0x02
	StreamMigration  uint64 = 0x03
	StreamEconomy    uint64 = 0x04
	StreamCluster    uint64 = 0x05
	StreamWorkerBase uint64 = 0x100
)

// splitmix64 is the standard 64-bit finalizer used to decorrelate seeds.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// Derive returns a rand.Rand seeded deterministically from
// (seed, stream, tick). Streams never alias across (stream, tick) pairs.
func Derive(seed, stream, tick uint64) *rand.Rand {
	s := splitmix64(seed)
	s = splitmix64(s ^ (stream * 0xd6e8feb86659fd93))
	s = splitmix64(s ^ (tick * 0xa0761d6478bd642f))
	return rand.New(rand.NewSource(int64(s)))
}

// Binomial samples the number of successes in n Bernoulli(p) trials.
// Exact for small n; Poisson inversion for rare events; normal
// approximation for the bulk regime. Always in [0, n].
func Binomial(r *rand.Rand, n int, p float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	np := float64(n) * p
	switch {
	case n <= 64:
		k := 0
		for i := 0; i < n; i++ {
			if r.Float64() < p {
				k++
			}
		}
		return k
	case np < 30 && p < 0.05:
		// Poisson(np) inversion; mortality cohorts live here.
		k := poisson(r, np)
		if k > n {
			k = n
		}
		return k
	default:
		// Normal approximation with continuity correction.
		sd := math.Sqrt(np * (1 - p))
		k := int(math.Round(np + r.NormFloat64()*sd))
		if k < 0 {
			k = 0
		}
		if k > n {
			k = n
		}
		return k
	}
}

// poisson samples Poisson(lambda) by inversion (Knuth). Only used for
// lambda < 30 so the loop stays short.
func poisson(r *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= r.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// SampleWithoutReplacement fills dst with k distinct indices drawn uniformly
// from [0, n) using a partial Fisher-Yates over a scratch permutation.
// Returns the number actually drawn (min(k, n)).
func SampleWithoutReplacement(r *rand.Rand, n, k int, dst []int) int {
	if k > n {
		k = n
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + r.Intn(n-i)
		perm[i], perm[j] = perm[j], perm[i]
		dst[i] = perm[i]
	}
	return k
}
