package agents

import "testing"

func newTestTable(t *testing.T, n int, regions uint32) *Table {
	t.Helper()
	tbl := NewTable(regions)
	for i := 0; i < n; i++ {
		a := Agent{
			Region:  uint32(i) % regions,
			ParentA: NoAgent,
			ParentB: NoAgent,
		}
		if _, err := tbl.Add(a); err != nil {
			t.Fatalf("add agent %d: %v", i, err)
		}
	}
	return tbl
}

func TestTableAddAssignsSequentialIDs(t *testing.T) {
	tbl := newTestTable(t, 10, 2)
	for i, a := range tbl.Agents() {
		if a.ID != uint32(i) {
			t.Fatalf("agent %d has id %d", i, a.ID)
		}
	}
	if tbl.Live() != 10 {
		t.Fatalf("live = %d, want 10", tbl.Live())
	}
}

func TestTableAddRejectsBadRegion(t *testing.T) {
	tbl := NewTable(3)
	if _, err := tbl.Add(Agent{Region: 3}); err == nil {
		t.Fatal("expected bounds error for region 3 of 3")
	}
}

func TestMarkDeadAndCompact(t *testing.T) {
	tbl := newTestTable(t, 6, 2)
	tbl.AddEdge(0, 1)
	tbl.AddEdge(0, 2)
	tbl.AddEdge(1, 2)

	tbl.MarkDead(1)
	if tbl.Live() != 5 {
		t.Fatalf("live = %d after death, want 5", tbl.Live())
	}
	// Edges survive until compaction.
	if !tbl.At(0).HasNeighbor(1) {
		t.Fatal("edge to dead agent removed before compaction")
	}

	tbl.Compact()
	if tbl.At(0).HasNeighbor(1) || tbl.At(2).HasNeighbor(1) {
		t.Fatal("compaction left edges to dead agent")
	}
	if err := tbl.CheckSymmetry(); err != nil {
		t.Fatalf("symmetry after compact: %v", err)
	}

	// The freed slot is recycled.
	id, err := tbl.Add(Agent{Region: 0, ParentA: NoAgent, ParentB: NoAgent})
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected recycled id 1, got %d", id)
	}
	if tbl.Live() != 6 {
		t.Fatalf("live = %d after recycle, want 6", tbl.Live())
	}
}

func TestRegionIndexTracksMoves(t *testing.T) {
	tbl := newTestTable(t, 8, 4)
	tbl.At(0).Region = 3
	tbl.RebuildRegionIndex()

	pops := tbl.RegionPopulations()
	var total uint32
	for _, p := range pops {
		total += p
	}
	if int(total) != tbl.Live() {
		t.Fatalf("region populations sum %d != live %d", total, tbl.Live())
	}
	found := false
	for _, id := range tbl.RegionIndex(3) {
		if id == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("moved agent missing from new region index")
	}
}

func TestEdgeOperations(t *testing.T) {
	tbl := newTestTable(t, 4, 2)
	tbl.AddEdge(0, 1)
	tbl.AddEdge(0, 1) // duplicate ignored
	tbl.AddEdge(2, 2) // self-loop ignored

	if len(tbl.At(0).Neighbors) != 1 || len(tbl.At(1).Neighbors) != 1 {
		t.Fatal("duplicate edge inserted")
	}
	if len(tbl.At(2).Neighbors) != 0 {
		t.Fatal("self-loop inserted")
	}

	tbl.RemoveEdge(0, 1)
	if len(tbl.At(0).Neighbors) != 0 || len(tbl.At(1).Neighbors) != 0 {
		t.Fatal("edge not removed from both endpoints")
	}
}
