package agents

import "math/rand"

// BuildSmallWorld wires the first n agents of the table into a
// Watts–Strogatz graph: ring lattice with k/2 neighbors on each side, then
// each lattice edge rewired with probability p to a uniform non-self,
// non-duplicate target. Lists are deduplicated and self-loops removed.
func BuildSmallWorld(t *Table, k uint32, p float64, r *rand.Rand) {
	n := uint32(len(t.agents))
	if n < 2 {
		return
	}
	if k%2 == 1 {
		k++
	}
	halfK := k / 2
	if halfK >= n {
		halfK = n - 1
	}
	ag := t.agents

	// Ring lattice.
	for i := uint32(0); i < n; i++ {
		for d := uint32(1); d <= halfK; d++ {
			j := (i + d) % n
			ag[i].Neighbors = append(ag[i].Neighbors, j)
			ag[j].Neighbors = append(ag[j].Neighbors, i)
		}
	}

	// Rewiring pass.
	for i := uint32(0); i < n; i++ {
		current := make(map[uint32]struct{}, len(ag[i].Neighbors))
		for _, nid := range ag[i].Neighbors {
			current[nid] = struct{}{}
		}
		for d := uint32(1); d <= halfK; d++ {
			if r.Float64() >= p {
				continue
			}
			oldJ := (i + d) % n
			ag[i].RemoveNeighbor(oldJ)
			ag[oldJ].RemoveNeighbor(i)
			delete(current, oldJ)

			var newJ uint32
			for {
				newJ = uint32(r.Intn(int(n)))
				if newJ == i {
					continue
				}
				if _, dup := current[newJ]; dup {
					continue
				}
				break
			}
			ag[i].Neighbors = append(ag[i].Neighbors, newJ)
			ag[newJ].Neighbors = append(ag[newJ].Neighbors, i)
			current[newJ] = struct{}{}
		}
	}

	// Deduplicate and drop self-loops.
	for i := range ag {
		seen := make(map[uint32]struct{}, len(ag[i].Neighbors))
		cleaned := ag[i].Neighbors[:0]
		for _, nid := range ag[i].Neighbors {
			if nid == ag[i].ID {
				continue
			}
			if _, dup := seen[nid]; dup {
				continue
			}
			seen[nid] = struct{}{}
			cleaned = append(cleaned, nid)
		}
		ag[i].Neighbors = cleaned
	}
}
