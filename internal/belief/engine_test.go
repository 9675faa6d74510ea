package belief

import (
	"math"
	"testing"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

func TestFastTanhBounds(t *testing.T) {
	for _, v := range []float64{-100, -10, -3, -1, -0.5, 0, 0.5, 1, 3, 10, 100} {
		got := FastTanh(v)
		if got < -1 || got > 1 {
			t.Fatalf("FastTanh(%v) = %v outside [-1, 1]", v, got)
		}
	}
}

func TestFastTanhAccuracy(t *testing.T) {
	// The rational form trades accuracy for speed; it stays within a few
	// percent of tanh across the clamp window and is monotone.
	for v := -3.0; v <= 3.0; v += 0.1 {
		got := FastTanh(v)
		want := math.Tanh(v)
		if math.Abs(got-want) > 0.025 {
			t.Fatalf("FastTanh(%v) = %v, tanh = %v", v, got, want)
		}
	}
	if FastTanh(0) != 0 {
		t.Fatalf("FastTanh(0) = %v", FastTanh(0))
	}
}

func testConfig() Config {
	return Config{
		StepSize:           0.15,
		SimFloor:           0.05,
		Workers:            1,
		NoiseStd:           0,
		AnchorBase:         0.1,
		AnchorAgeWeight:    0.3,
		AnchorAssertWeight: 0.2,
		AnchorMax:          0.8,
		MaxAgeYears:        100,
		Seed:               42,
	}
}

// pairTable builds two linked agents with opposing beliefs and identical
// wealth (so the wealth feedback stays quiet).
func pairTable(t *testing.T) *agents.Table {
	t.Helper()
	tbl := agents.NewTable(1)
	for i := 0; i < 2; i++ {
		a := agents.Agent{
			Region:          0,
			Age:             30,
			ParentA:         agents.NoAgent,
			ParentB:         agents.NoAgent,
			Fluency:         1.0,
			MComm:           1.0,
			MSusceptibility: 1.0,
			Wealth:          1.0,
			Openness:        0.5,
		}
		sign := 1.0
		if i == 1 {
			sign = -1
		}
		for k := 0; k < agents.BeliefDims; k++ {
			a.X[k] = sign * 0.5
			a.B[k] = FastTanh(a.X[k])
		}
		a.RecomputeBeliefNorm()
		if _, err := tbl.Add(a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	tbl.AddEdge(0, 1)
	return tbl
}

func TestPairwiseConvergence(t *testing.T) {
	tbl := pairTable(t)
	eng := NewEngine()
	cfg := testConfig()
	fields := []RegionField{{FieldStrength: 1, MeanWealth: 1}}

	initialGap := math.Abs(tbl.At(0).B[0] - tbl.At(1).B[0])
	for tick := uint64(1); tick <= 50; tick++ {
		eng.Update(tbl, fields, cfg, tick)
	}
	finalGap := math.Abs(tbl.At(0).B[0] - tbl.At(1).B[0])
	if finalGap >= initialGap {
		t.Fatalf("neighbors did not converge: gap %v -> %v", initialGap, finalGap)
	}
	for i := 0; i < 2; i++ {
		for k := 0; k < agents.BeliefDims; k++ {
			b := tbl.At(uint32(i)).B[k]
			if b < -1 || b > 1 || math.IsNaN(b) {
				t.Fatalf("belief out of bounds: %v", b)
			}
		}
	}
}

func TestZeroStepSizeIsIdempotent(t *testing.T) {
	tbl := pairTable(t)
	eng := NewEngine()
	cfg := testConfig()
	cfg.StepSize = 0
	fields := []RegionField{{FieldStrength: 1, MeanWealth: 1}}

	before := [2][agents.BeliefDims]float64{tbl.At(0).X, tbl.At(1).X}
	eng.Update(tbl, fields, cfg, 1)
	after := [2][agents.BeliefDims]float64{tbl.At(0).X, tbl.At(1).X}
	if before != after {
		t.Fatalf("stepSize=0 changed state: %v -> %v", before, after)
	}
}

func TestDeterminismAcrossEngines(t *testing.T) {
	run := func() *agents.Table {
		tbl := pairTable(t)
		eng := NewEngine()
		cfg := testConfig()
		cfg.NoiseStd = 0.03
		fields := []RegionField{{FieldStrength: 1, MeanWealth: 1}}
		for tick := uint64(1); tick <= 20; tick++ {
			eng.Update(tbl, fields, cfg, tick)
		}
		return tbl
	}
	a, b := run(), run()
	for i := 0; i < 2; i++ {
		if a.At(uint32(i)).B != b.At(uint32(i)).B {
			t.Fatalf("identical configs diverged at agent %d", i)
		}
	}
}

func TestMeanFieldPullsTowardCentroid(t *testing.T) {
	tbl := agents.NewTable(1)
	// Three agents at +0.8 and one dissenter at -0.8: the dissenter should
	// move toward the pack.
	for i := 0; i < 4; i++ {
		x := 0.8
		if i == 3 {
			x = -0.8
		}
		a := agents.Agent{
			Region: 0, Age: 30, ParentA: agents.NoAgent, ParentB: agents.NoAgent,
			Fluency: 1, MComm: 1, MSusceptibility: 1, Wealth: 1, Openness: 0.5,
		}
		for k := 0; k < agents.BeliefDims; k++ {
			a.X[k] = x
			a.B[k] = FastTanh(x)
		}
		a.RecomputeBeliefNorm()
		if _, err := tbl.Add(a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	eng := NewEngine()
	cfg := testConfig()
	cfg.UseMeanField = true
	fields := []RegionField{{FieldStrength: 1, MeanWealth: 1}}

	before := tbl.At(3).B[0]
	for tick := uint64(1); tick <= 10; tick++ {
		eng.Update(tbl, fields, cfg, tick)
	}
	after := tbl.At(3).B[0]
	if after <= before {
		t.Fatalf("dissenter did not move toward centroid: %v -> %v", before, after)
	}
}

func TestHardshipFeedbackNudgesLeft(t *testing.T) {
	tbl := pairTable(t)
	tbl.At(0).Hardship = 1.0
	eng := NewEngine()
	cfg := testConfig()
	cfg.StepSize = 0
	fields := []RegionField{{FieldStrength: 1, MeanWealth: 1}}

	before0, before2 := tbl.At(0).X[0], tbl.At(0).X[2]
	eng.Update(tbl, fields, cfg, 1)
	if tbl.At(0).X[0] >= before0 || tbl.At(0).X[2] >= before2 {
		t.Fatal("hardship feedback did not push axes 0 and 2 down")
	}
}
