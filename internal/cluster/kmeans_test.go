package cluster

import (
	"math/rand"
	"testing"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

// twoBlobTable builds agents split between two tight belief clusters.
func twoBlobTable(t *testing.T, perBlob int, r *rand.Rand) *agents.Table {
	t.Helper()
	tbl := agents.NewTable(1)
	for i := 0; i < 2*perBlob; i++ {
		center := 0.7
		if i >= perBlob {
			center = -0.7
		}
		a := agents.Agent{
			Region: 0, ParentA: agents.NoAgent, ParentB: agents.NoAgent,
			Assertiveness: r.Float64(),
		}
		for k := 0; k < agents.BeliefDims; k++ {
			a.B[k] = center + r.NormFloat64()*0.05
			if a.B[k] > 1 {
				a.B[k] = 1
			}
			if a.B[k] < -1 {
				a.B[k] = -1
			}
		}
		a.RecomputeBeliefNorm()
		if _, err := tbl.Add(a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return tbl
}

func TestKMeansCoversEveryLiveAgent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tbl := twoBlobTable(t, 100, r)
	km := NewKMeans(4, 0.05, 1000, tbl, r)

	for tick := uint64(1); tick <= 20; tick++ {
		km.Tick(tbl, tick, r)
	}

	sizes := 0
	for _, s := range km.Summaries(tbl) {
		sizes += s.Size
	}
	if sizes != tbl.Live() {
		t.Fatalf("cluster sizes sum %d != live population %d", sizes, tbl.Live())
	}
	for i := 0; i < tbl.Len(); i++ {
		if !tbl.At(uint32(i)).Alive {
			continue
		}
		c := km.Assignment(uint32(i))
		if c < 0 || int(c) >= km.K() {
			t.Fatalf("agent %d has cluster id %d outside [0, %d)", i, c, km.K())
		}
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tbl := twoBlobTable(t, 200, r)
	km := NewKMeans(2, 0.05, 100, tbl, r)
	// Start the centroids on either side of the origin so the online update
	// has a clean basin per blob.
	km.Centroids[0] = [agents.BeliefDims]float64{0.1, 0.1, 0.1, 0.1}
	km.Centroids[1] = [agents.BeliefDims]float64{-0.1, -0.1, -0.1, -0.1}
	km.Reassign(tbl)

	for tick := uint64(1); tick <= 200; tick++ {
		km.Tick(tbl, tick, r)
	}

	// The two centroids should sit near opposite blobs.
	if km.Centroids[0][0]*km.Centroids[1][0] >= 0 {
		t.Fatalf("centroids did not separate: %v vs %v", km.Centroids[0], km.Centroids[1])
	}

	// Tight blobs are highly coherent.
	for _, s := range km.Summaries(tbl) {
		if s.Size == 0 {
			continue
		}
		if s.Coherence < 0.9 {
			t.Fatalf("cluster %d coherence %v for a tight blob", s.ID, s.Coherence)
		}
	}
}

func TestKMeansDeadAgentsUnassigned(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	tbl := twoBlobTable(t, 50, r)
	km := NewKMeans(3, 0.05, 1000, tbl, r)
	tbl.MarkDead(0)
	km.Tick(tbl, 1, r)

	if km.Assignment(0) != -1 {
		t.Fatal("dead agent still assigned to a cluster")
	}
}

func TestKMeansReseedsEmptyClusters(t *testing.T) {
	r := rand.New(rand.NewSource(9))
	tbl := twoBlobTable(t, 50, r)
	km := NewKMeans(2, 0.05, 10, tbl, r)
	// Park a centroid far outside the data so it empties.
	km.Centroids[1] = [agents.BeliefDims]float64{-100, -100, -100, -100}

	for tick := uint64(1); tick <= 10; tick++ {
		km.Tick(tbl, tick, r)
	}
	for k := 0; k < agents.BeliefDims; k++ {
		if km.Centroids[1][k] < -1.5 {
			t.Fatalf("empty cluster never reseeded: %v", km.Centroids[1])
		}
	}
}

func TestDBSCANFindsTwoBlobs(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	tbl := twoBlobTable(t, 100, r)
	res := DBSCAN(tbl, 0.3, 5)

	if res.NumClusters != 2 {
		t.Fatalf("DBSCAN found %d clusters, want 2", res.NumClusters)
	}
	for i := 0; i < tbl.Len(); i++ {
		if tbl.At(uint32(i)).Alive && res.Labels[i] == unvisited {
			t.Fatalf("live agent %d left unvisited", i)
		}
	}
}

func TestDBSCANAllNoiseWhenSparse(t *testing.T) {
	tbl := agents.NewTable(1)
	// Four well-separated points, minPts too high for any core.
	for i := 0; i < 4; i++ {
		a := agents.Agent{Region: 0, ParentA: agents.NoAgent, ParentB: agents.NoAgent}
		a.B[0] = -0.9 + 0.6*float64(i)
		a.RecomputeBeliefNorm()
		if _, err := tbl.Add(a); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	res := DBSCAN(tbl, 0.1, 3)
	if res.NumClusters != 0 {
		t.Fatalf("expected pure noise, got %d clusters", res.NumClusters)
	}
}
