package agents

import (
	"math/rand"
	"testing"
)

func buildGraphTable(t *testing.T, n int, k uint32, p float64, seed int64) *Table {
	t.Helper()
	tbl := NewTable(4)
	for i := 0; i < n; i++ {
		if _, err := tbl.Add(Agent{Region: uint32(i % 4), ParentA: NoAgent, ParentB: NoAgent}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	BuildSmallWorld(tbl, k, p, rand.New(rand.NewSource(seed)))
	return tbl
}

func TestSmallWorldSymmetry(t *testing.T) {
	tbl := buildGraphTable(t, 500, 8, 0.05, 42)
	if err := tbl.CheckSymmetry(); err != nil {
		t.Fatalf("asymmetric graph: %v", err)
	}
}

func TestSmallWorldNoSelfLoopsOrDuplicates(t *testing.T) {
	tbl := buildGraphTable(t, 300, 6, 0.2, 7)
	for _, a := range tbl.Agents() {
		seen := map[uint32]bool{}
		for _, nid := range a.Neighbors {
			if nid == a.ID {
				t.Fatalf("agent %d has self-loop", a.ID)
			}
			if seen[nid] {
				t.Fatalf("agent %d has duplicate neighbor %d", a.ID, nid)
			}
			seen[nid] = true
		}
	}
}

func TestSmallWorldDegree(t *testing.T) {
	const n, k = 400, 8
	tbl := buildGraphTable(t, n, k, 0.05, 3)

	totalEdges := 0
	for _, a := range tbl.Agents() {
		totalEdges += len(a.Neighbors)
	}
	// Each of the n·k/2 lattice edges contributes 2 endpoints; rewiring
	// preserves the count up to dedup losses.
	want := n * k
	if totalEdges < want*9/10 || totalEdges > want {
		t.Fatalf("endpoint count %d far from expected ~%d", totalEdges, want)
	}
}

func TestSmallWorldZeroRewireIsRing(t *testing.T) {
	tbl := buildGraphTable(t, 20, 4, 0, 1)
	for _, a := range tbl.Agents() {
		if len(a.Neighbors) != 4 {
			t.Fatalf("agent %d degree %d, want 4 on pure ring", a.ID, len(a.Neighbors))
		}
	}
}
