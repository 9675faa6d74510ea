package agents

import "fmt"

// Table uniquely owns all agents. Agent ids are stable indices into the
// backing slice; dead agents keep their slot until Compact recycles it, so
// neighbor lists stay valid across deaths.
type Table struct {
	agents      []Agent
	regionIndex [][]uint32
	freeIDs     []uint32
	liveCount   int
	numRegions  uint32
}

// NewTable creates an empty table partitioned across numRegions regions.
func NewTable(numRegions uint32) *Table {
	return &Table{
		regionIndex: make([][]uint32, numRegions),
		numRegions:  numRegions,
	}
}

// Agents returns the backing slice. Callers index by agent id; dead slots
// must be skipped via the Alive flag.
func (t *Table) Agents() []Agent {
	return t.agents
}

// At returns a pointer to the agent with the given id.
func (t *Table) At(id uint32) *Agent {
	return &t.agents[id]
}

// Len returns the number of slots (live + dead + recycled).
func (t *Table) Len() int {
	return len(t.agents)
}

// Live returns the number of live agents.
func (t *Table) Live() int {
	return t.liveCount
}

// NumRegions returns the region count the table is partitioned over.
func (t *Table) NumRegions() uint32 {
	return t.numRegions
}

// Add inserts an agent, reusing a compacted slot when one is free, and
// returns the assigned id. The agent's Region must already be set.
func (t *Table) Add(a Agent) (uint32, error) {
	if a.Region >= t.numRegions {
		return 0, &BoundsError{What: "agent region", Index: a.Region, Limit: uint32(t.numRegions)}
	}
	a.Alive = true
	var id uint32
	if n := len(t.freeIDs); n > 0 {
		id = t.freeIDs[n-1]
		t.freeIDs = t.freeIDs[:n-1]
		a.ID = id
		t.agents[id] = a
	} else {
		id = uint32(len(t.agents))
		a.ID = id
		t.agents = append(t.agents, a)
	}
	t.regionIndex[a.Region] = append(t.regionIndex[a.Region], id)
	t.liveCount++
	return id, nil
}

// MarkDead flags an agent dead. The slot and its edges persist until the
// next Compact so in-flight phases never see dangling ids.
func (t *Table) MarkDead(id uint32) {
	a := &t.agents[id]
	if !a.Alive {
		return
	}
	a.Alive = false
	t.liveCount--
}

// Compact severs dead agents from the graph and recycles their slots.
// Runs in a sequential phase; never concurrent with belief updates.
func (t *Table) Compact() {
	for i := range t.agents {
		a := &t.agents[i]
		if a.Alive || a.Neighbors == nil {
			continue
		}
		for _, nid := range a.Neighbors {
			t.agents[nid].RemoveNeighbor(a.ID)
		}
		a.Neighbors = nil
		t.freeIDs = append(t.freeIDs, a.ID)
	}
	t.RebuildRegionIndex()
}

// RegionIndex returns the live agent ids in region r. The slice is owned by
// the table and is invalidated by RebuildRegionIndex.
func (t *Table) RegionIndex(r uint32) []uint32 {
	return t.regionIndex[r]
}

// RebuildRegionIndex recomputes the region → live-agent-id mapping.
// Must run after any phase that mutates Region or Alive.
func (t *Table) RebuildRegionIndex() {
	for r := range t.regionIndex {
		t.regionIndex[r] = t.regionIndex[r][:0]
	}
	for i := range t.agents {
		a := &t.agents[i]
		if a.Alive {
			t.regionIndex[a.Region] = append(t.regionIndex[a.Region], a.ID)
		}
	}
}

// RegionPopulations returns the live count per region.
func (t *Table) RegionPopulations() []uint32 {
	pops := make([]uint32, t.numRegions)
	for r := range t.regionIndex {
		pops[r] = uint32(len(t.regionIndex[r]))
	}
	return pops
}

// Adopt replaces the table contents with a deserialized agent slice.
// Slot order must match the original ids. Indexes and the free list are
// rebuilt from scratch.
func (t *Table) Adopt(ag []Agent) {
	t.agents = ag
	t.freeIDs = t.freeIDs[:0]
	t.liveCount = 0
	for i := range t.agents {
		if t.agents[i].Alive {
			t.liveCount++
		} else if t.agents[i].Neighbors == nil {
			t.freeIDs = append(t.freeIDs, t.agents[i].ID)
		}
	}
	t.RebuildRegionIndex()
}

// AddEdge inserts the undirected edge (i, j) unless it exists or i == j.
func (t *Table) AddEdge(i, j uint32) {
	if i == j {
		return
	}
	ai, aj := &t.agents[i], &t.agents[j]
	if ai.HasNeighbor(j) {
		return
	}
	ai.Neighbors = append(ai.Neighbors, j)
	aj.Neighbors = append(aj.Neighbors, i)
}

// RemoveEdge deletes the undirected edge (i, j) from both endpoints.
func (t *Table) RemoveEdge(i, j uint32) {
	t.agents[i].RemoveNeighbor(j)
	t.agents[j].RemoveNeighbor(i)
}

// CheckSymmetry verifies graph symmetry: j in neighbors(i) iff i in
// neighbors(j). Used by strict mode and tests.
func (t *Table) CheckSymmetry() error {
	for i := range t.agents {
		a := &t.agents[i]
		for _, j := range a.Neighbors {
			if int(j) >= len(t.agents) {
				return &BoundsError{What: "neighbor id", Index: j, Limit: uint32(len(t.agents))}
			}
			if !t.agents[j].HasNeighbor(a.ID) {
				return fmt.Errorf("graph asymmetry: %d lists %d but not vice versa", a.ID, j)
			}
		}
	}
	return nil
}

// BoundsError reports an out-of-range agent or region index. It indicates a
// logic bug and is fatal.
type BoundsError struct {
	What  string
	Index uint32
	Limit uint32
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s out of bounds: %d >= %d", e.What, e.Index, e.Limit)
}
