// Package agents provides the agent data model, the owning table, and the
// small-world social graph.
package agents

// BeliefDims is the dimensionality of the ideological space.
const BeliefDims = 4

// Belief axis names. Negative pole first, positive pole second.
var (
	AxisNeg = [BeliefDims]string{"Authority", "Tradition", "Hierarchy", "Faith"}
	AxisPos = [BeliefDims]string{"Liberty", "Progress", "Equality", "Rationalism"}
)

// NoAgent marks an absent parent reference.
const NoAgent = ^uint32(0)

// NumLanguages is the number of base languages.
const NumLanguages = 4

// Agent is one person in the simulation. The Table owns all agents; the
// social graph is expressed as ids (indices) into the owning table.
type Agent struct {
	ID     uint32
	Region uint32
	Alive  bool
	Female bool
	Age    float64 // years

	ParentA   uint32
	ParentB   uint32
	LineageID uint32

	PrimaryLang uint8
	Dialect     uint8
	Fluency     float64 // [0.3, 1.0]

	// Personality, all in [0, 1].
	Openness      float64
	Conformity    float64
	Assertiveness float64
	Sociality     float64

	// Beliefs: X is the unbounded internal state, B = tanh(X) per dim,
	// BNormSq caches |B|² for the similarity gate.
	X       [BeliefDims]float64
	B       [BeliefDims]float64
	BNormSq float64

	// Module multipliers, roughly [0, 1.2].
	MComm           float64
	MSusceptibility float64
	MMobility       float64

	// Economy.
	Wealth       float64
	Income       float64
	Productivity float64
	Hardship     float64
	Sector       uint8

	// Ordered neighbor ids. Undirected: j in Neighbors(i) iff i in Neighbors(j).
	Neighbors []uint32
}

// RecomputeBeliefNorm refreshes the cached |B|².
func (a *Agent) RecomputeBeliefNorm() {
	s := 0.0
	for k := 0; k < BeliefDims; k++ {
		s += a.B[k] * a.B[k]
	}
	a.BNormSq = s
}

// HasNeighbor reports whether id is already in the neighbor list.
func (a *Agent) HasNeighbor(id uint32) bool {
	for _, n := range a.Neighbors {
		if n == id {
			return true
		}
	}
	return false
}

// RemoveNeighbor deletes id from the neighbor list, preserving order.
func (a *Agent) RemoveNeighbor(id uint32) {
	for i, n := range a.Neighbors {
		if n == id {
			a.Neighbors = append(a.Neighbors[:i], a.Neighbors[i+1:]...)
			return
		}
	}
}
