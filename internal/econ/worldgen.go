package econ

import (
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenerateRegions lays n regions on a unit grid and rolls their endowments,
// development, and efficiency from layered simplex noise. One noise layer
// per good plus one for development keeps the layers independent.
func GenerateRegions(n uint32, seed int64, r *rand.Rand) []Region {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}

	var goodNoise [NumGoods]opensimplex.Noise
	for g := 0; g < NumGoods; g++ {
		goodNoise[g] = opensimplex.NewNormalized(seed + int64(g))
	}
	devNoise := opensimplex.NewNormalized(seed + 10)

	regions := make([]Region, n)
	for i := uint32(0); i < n; i++ {
		row := int(i) / cols
		col := int(i) % cols
		x := (float64(col) + 0.5) / float64(cols)
		y := (float64(row) + 0.5) / float64(cols)

		reg := Region{
			ID:       i,
			X:        x,
			Y:        y,
			Latitude: y,
		}

		for g := 0; g < NumGoods; g++ {
			// Octave noise in [0, 1]; endowments skew low so trade matters.
			v := octaveNoise(goodNoise[g], x, y, 3, 4.0, 0.5)
			reg.Endowment[g] = 0.2 + 0.8*v
			reg.Prices[g] = 1.0
		}
		// Luxury endowments are rare.
		reg.Endowment[GoodLuxury] *= 0.4

		dv := octaveNoise(devNoise, x, y, 3, 3.0, 0.5)
		reg.Development = 0.2 + 0.8*dv*dv
		reg.Efficiency = 0.6 + 0.3*dv
		reg.SystemStability = 0.5
		reg.Welfare = 1.0

		// Most regions start mixed; a few begin elsewhere.
		switch roll := r.Float64(); {
		case roll < 0.70:
			reg.System = SystemMixed
		case roll < 0.80:
			reg.System = SystemCooperative
		case roll < 0.90:
			reg.System = SystemMarket
		case roll < 0.96:
			reg.System = SystemFeudal
		default:
			reg.System = SystemPlanned
		}

		regions[i] = reg
	}

	buildTradeGraph(regions, r)
	return regions
}

// buildTradeGraph links each region to its geographically nearest partners.
// Partner count is 2 + ⌊development·10⌋ + U{0,3}; the adjacency is
// symmetrized so the trade Laplacian conserves mass.
func buildTradeGraph(regions []Region, r *rand.Rand) {
	n := len(regions)
	type distIdx struct {
		d   float64
		idx uint32
	}
	for i := range regions {
		want := 2 + int(regions[i].Development*10) + r.Intn(4)
		if want > n-1 {
			want = n - 1
		}
		cands := make([]distIdx, 0, n-1)
		for j := range regions {
			if i == j {
				continue
			}
			dx := regions[i].X - regions[j].X
			dy := regions[i].Y - regions[j].Y
			cands = append(cands, distIdx{d: dx*dx + dy*dy, idx: uint32(j)})
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].d < cands[b].d })
		for k := 0; k < want; k++ {
			regions[i].TradePartners = append(regions[i].TradePartners, cands[k].idx)
		}
	}

	// Symmetrize.
	for i := range regions {
		for _, j := range regions[i].TradePartners {
			if !hasPartner(&regions[j], uint32(i)) {
				regions[j].TradePartners = append(regions[j].TradePartners, uint32(i))
			}
		}
	}
}

func hasPartner(r *Region, id uint32) bool {
	for _, p := range r.TradePartners {
		if p == id {
			return true
		}
	}
	return false
}

// octaveNoise layers multiple frequencies of simplex noise, normalized to
// keep the output in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}
