package econ

import (
	"math"
	"math/rand"
	"testing"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

func testEconomy(t *testing.T, numRegions uint32, popPerRegion int) (*Economy, *agents.Table) {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	eco := New(GenerateRegions(numRegions, 42, r))

	tbl := agents.NewTable(numRegions)
	for reg := uint32(0); reg < numRegions; reg++ {
		for i := 0; i < popPerRegion; i++ {
			a := agents.Agent{
				Region:       reg,
				ParentA:      agents.NoAgent,
				ParentB:      agents.NoAgent,
				Age:          30,
				Wealth:       1 + r.Float64(),
				Productivity: 0.5 + r.Float64(),
				Sector:       uint8(r.Intn(NumGoods)),
			}
			if _, err := tbl.Add(a); err != nil {
				t.Fatalf("add: %v", err)
			}
		}
	}
	return eco, tbl
}

func centroidsFor(n uint32) [][agents.BeliefDims]float64 {
	return make([][agents.BeliefDims]float64, n)
}

func TestGenerateRegionsTradeGraph(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	regions := GenerateRegions(20, 7, r)

	for i := range regions {
		if len(regions[i].TradePartners) < 2 {
			t.Fatalf("region %d has %d trade partners, want >= 2", i, len(regions[i].TradePartners))
		}
		for _, p := range regions[i].TradePartners {
			if p == uint32(i) {
				t.Fatalf("region %d trades with itself", i)
			}
			if !hasPartner(&regions[p], uint32(i)) {
				t.Fatalf("trade graph asymmetric: %d -> %d", i, p)
			}
		}
	}
}

func TestGenerateRegionsEndowments(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	regions := GenerateRegions(50, 7, r)
	for i := range regions {
		for g := 0; g < NumGoods; g++ {
			e := regions[i].Endowment[g]
			if e <= 0 || e > 1 {
				t.Fatalf("region %d endowment[%d] = %v", i, g, e)
			}
			if regions[i].Prices[g] != 1.0 {
				t.Fatalf("region %d price[%d] should start at 1.0", i, g)
			}
		}
	}
}

func TestPriceBounds(t *testing.T) {
	eco, tbl := testEconomy(t, 10, 50)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		eco.Tick(tbl, centroidsFor(10), r)
	}
	for i := range eco.Regions {
		for g := 0; g < NumGoods; g++ {
			p := eco.Regions[i].Prices[g]
			if p <= 0 || p > 100 {
				t.Fatalf("region %d price[%d] = %v outside (0, 100]", i, g, p)
			}
		}
	}
}

func TestTradeConservation(t *testing.T) {
	eco, tbl := testEconomy(t, 12, 40)
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		eco.Tick(tbl, centroidsFor(12), r)
		if err := CheckTradeConservation(eco.Regions); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if eco.TradeVolume < 0 {
		t.Fatalf("negative trade volume %v", eco.TradeVolume)
	}
}

func TestWealthStaysNonNegative(t *testing.T) {
	eco, tbl := testEconomy(t, 5, 30)
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 50; i++ {
		eco.Tick(tbl, centroidsFor(5), r)
	}
	for _, a := range tbl.Agents() {
		if a.Wealth < 0 || math.IsNaN(a.Wealth) {
			t.Fatalf("agent %d wealth %v", a.ID, a.Wealth)
		}
		if a.Hardship < 0 || a.Hardship > 1 {
			t.Fatalf("agent %d hardship %v", a.ID, a.Hardship)
		}
	}
}

func TestRegionAggregateRanges(t *testing.T) {
	eco, tbl := testEconomy(t, 8, 40)
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 30; i++ {
		eco.Tick(tbl, centroidsFor(8), r)
	}
	for i := range eco.Regions {
		reg := &eco.Regions[i]
		if reg.Inequality < 0 || reg.Inequality > 1 {
			t.Fatalf("region %d inequality %v", i, reg.Inequality)
		}
		if reg.Welfare < 0 || reg.Welfare > 2 {
			t.Fatalf("region %d welfare %v", i, reg.Welfare)
		}
		if reg.Hardship < 0 || reg.Hardship > 1 {
			t.Fatalf("region %d hardship %v", i, reg.Hardship)
		}
		for g := 0; g < NumGoods; g++ {
			s := reg.Specialization[g]
			if s < -0.5 || s > 0.3 {
				t.Fatalf("region %d specialization[%d] = %v", i, g, s)
			}
		}
	}
}

func TestSystemTransitionsFollowBeliefs(t *testing.T) {
	eco, tbl := testEconomy(t, 6, 30)
	r := rand.New(rand.NewSource(5))

	// Strongly libertarian-egalitarian centroids should eventually pull
	// regions toward the cooperative system.
	centroids := make([][agents.BeliefDims]float64, 6)
	for i := range centroids {
		centroids[i] = [agents.BeliefDims]float64{0.8, 0, 0.8, 0}
	}

	transitioned := false
	for i := 0; i < 2000 && !transitioned; i++ {
		for _, tr := range eco.Tick(tbl, centroids, r) {
			if tr.To != SystemCooperative {
				t.Fatalf("unexpected transition target %v", tr.To)
			}
			transitioned = true
		}
	}
	if !transitioned {
		t.Fatal("no system transition in 2000 economy ticks despite strong pressure")
	}
}

func TestDesiredSystemMapping(t *testing.T) {
	cases := []struct {
		centroid [agents.BeliefDims]float64
		want     System
	}{
		{[agents.BeliefDims]float64{0, 0, 0, 0}, SystemMixed},
		{[agents.BeliefDims]float64{-0.5, 0, 0.5, 0}, SystemPlanned},
		{[agents.BeliefDims]float64{-0.5, 0, -0.5, 0}, SystemFeudal},
		{[agents.BeliefDims]float64{0.5, 0, 0.5, 0}, SystemCooperative},
		{[agents.BeliefDims]float64{0.5, 0, -0.2, 0}, SystemMarket},
	}
	for _, tc := range cases {
		if got := desiredSystem(tc.centroid); got != tc.want {
			t.Errorf("desiredSystem(%v) = %v, want %v", tc.centroid, got, tc.want)
		}
	}
}
