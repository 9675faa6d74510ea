package sim

import (
	"encoding/json"
	"strconv"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
)

// jfloat formats floats with six decimal digits in JSON output, satisfying
// the snapshot contract of at least four.
type jfloat float64

func (f jfloat) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(f), 'f', 6, 64)), nil
}

// AgentSnapshot is one agent row in the JSON state dump.
type AgentSnapshot struct {
	ID      uint32    `json:"id"`
	Region  uint32    `json:"region"`
	Lang    uint8     `json:"lang"`
	Beliefs [4]jfloat `json:"beliefs"`
	Alive   bool      `json:"alive"`
	Age     jfloat    `json:"age"`
	Female  bool      `json:"female"`

	// Personality, present only when traits are requested.
	Openness      *jfloat `json:"openness,omitempty"`
	Conformity    *jfloat `json:"conformity,omitempty"`
	Assertiveness *jfloat `json:"assertiveness,omitempty"`
	Sociality     *jfloat `json:"sociality,omitempty"`
}

// Snapshot is the full JSON state document.
type Snapshot struct {
	Generation uint64            `json:"generation"`
	Metrics    map[string]jfloat `json:"metrics"`
	Agents     []AgentSnapshot   `json:"agents"`
}

// SnapshotJSON renders the kernel state as a single JSON document. With
// traits set, per-agent personality fields are included.
func (k *Kernel) SnapshotJSON(traits bool) ([]byte, error) {
	m := k.ComputeMetrics()
	snap := Snapshot{
		Generation: k.generation,
		Metrics: map[string]jfloat{
			"polarization_mean": jfloat(m.PolarizationMean),
			"polarization_std":  jfloat(m.PolarizationStd),
			"avg_openness":      jfloat(m.AvgOpenness),
			"avg_conformity":    jfloat(m.AvgConformity),
			"welfare":           jfloat(m.Welfare),
			"inequality":        jfloat(m.Inequality),
			"hardship":          jfloat(m.Hardship),
			"trade_volume":      jfloat(m.TradeVolume),
			"population":        jfloat(float64(m.Population)),
		},
	}

	ag := k.tbl.Agents()
	snap.Agents = make([]AgentSnapshot, 0, k.tbl.Live())
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		row := AgentSnapshot{
			ID:     a.ID,
			Region: a.Region,
			Lang:   a.PrimaryLang,
			Alive:  a.Alive,
			Age:    jfloat(a.Age),
			Female: a.Female,
		}
		for d := 0; d < agents.BeliefDims; d++ {
			row.Beliefs[d] = jfloat(a.B[d])
		}
		if traits {
			o, c, as, so := jfloat(a.Openness), jfloat(a.Conformity), jfloat(a.Assertiveness), jfloat(a.Sociality)
			row.Openness, row.Conformity, row.Assertiveness, row.Sociality = &o, &c, &as, &so
		}
		snap.Agents = append(snap.Agents, row)
	}

	return json.Marshal(snap)
}
