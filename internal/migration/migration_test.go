package migration

import (
	"math/rand"
	"testing"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/econ"
)

// pressureWorld builds two regions with a stark hardship gradient and a
// population stuck in the bad one.
func pressureWorld(t *testing.T, pop int) (*agents.Table, *econ.Economy) {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	regions := econ.GenerateRegions(2, 42, r)
	regions[0].Hardship = 1.0
	regions[0].Welfare = 0.0
	regions[1].Hardship = 0.0
	regions[1].Welfare = 1.5

	tbl := agents.NewTable(2)
	for i := 0; i < pop; i++ {
		a := agents.Agent{
			Region:    0,
			Age:       25,
			ParentA:   agents.NoAgent,
			ParentB:   agents.NoAgent,
			Openness:  1.0,
			Sociality: 0.5,
			MMobility: 1.2,
		}
		id, err := tbl.Add(a)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if i > 0 {
			tbl.AddEdge(id, id-1)
		}
	}
	// A few locals in the good region so movers can attach.
	for i := 0; i < 5; i++ {
		if _, err := tbl.Add(agents.Agent{Region: 1, Age: 30, ParentA: agents.NoAgent, ParentB: agents.NoAgent}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return tbl, econ.New(regions)
}

func TestMigrationFollowsGradient(t *testing.T) {
	tbl, eco := pressureWorld(t, 200)
	cfg := DefaultConfig(1000)
	r := rand.New(rand.NewSource(1))

	moves := 0
	for i := 0; i < 100; i++ {
		moves += Tick(tbl, eco, cfg, r)
		tbl.RebuildRegionIndex()
	}
	if moves == 0 {
		t.Fatal("no migration despite extreme hardship gradient")
	}
	if got := len(tbl.RegionIndex(1)); got <= 5 {
		t.Fatalf("good region did not gain population: %d", got)
	}
	// Migration neither creates nor loses agents.
	if len(tbl.RegionIndex(0))+len(tbl.RegionIndex(1)) != tbl.Live() {
		t.Fatal("population not conserved across migration")
	}
}

func TestMigrationPreservesGraphSymmetry(t *testing.T) {
	tbl, eco := pressureWorld(t, 150)
	cfg := DefaultConfig(1000)
	r := rand.New(rand.NewSource(2))

	for i := 0; i < 50; i++ {
		Tick(tbl, eco, cfg, r)
		tbl.RebuildRegionIndex()
		if err := tbl.CheckSymmetry(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
}

func TestElderlyDoNotMigrate(t *testing.T) {
	tbl, eco := pressureWorld(t, 0)
	// Add only 80-year-olds to the bad region: age factor is zero past 75.
	for i := 0; i < 100; i++ {
		if _, err := tbl.Add(agents.Agent{
			Region: 0, Age: 80, ParentA: agents.NoAgent, ParentB: agents.NoAgent,
			Openness: 1, MMobility: 1.2,
		}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	tbl.RebuildRegionIndex()
	cfg := DefaultConfig(1000)
	r := rand.New(rand.NewSource(3))

	for i := 0; i < 50; i++ {
		if moves := Tick(tbl, eco, cfg, r); moves > 0 {
			t.Fatalf("80-year-olds migrated on tick %d", i)
		}
	}
}
