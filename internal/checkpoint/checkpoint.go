// Package checkpoint serializes the kernel to a binary little-endian file
// and restores it. The format is versioned and magic-guarded; loads refuse
// mismatches and truncated files rather than guessing. Economy state is a
// full restore: a checkpoint missing its region section is an error.
package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/econ"
	"github.com/evanwolo/emergent-civ-sim/internal/sim"
)

const (
	// Magic spells "VSCE" little-endian on disk.
	Magic   uint32 = 0x45435356
	Version uint32 = 1
)

// Header is the fixed-size preamble of every checkpoint file.
type Header struct {
	Magic      uint32
	Version    uint32
	Generation uint64
	NumAgents  uint32
	NumRegions uint32
	Seed       uint64
	Timestamp  uint64
}

// Save writes the kernel state to path. On error the partial file is
// removed; in-memory state is never touched.
func Save(k *sim.Kernel, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint create: %w", err)
	}
	w := &leWriter{w: bufio.NewWriter(f)}

	tbl := k.Table()
	cfg := k.Config()

	w.u32(Magic)
	w.u32(Version)
	w.u64(k.Generation())
	w.u32(uint32(tbl.Len()))
	w.u32(uint32(tbl.NumRegions()))
	w.u64(cfg.Seed)
	w.u64(uint64(time.Now().Unix()))

	ag := tbl.Agents()
	for i := range ag {
		writeAgent(w, &ag[i])
	}
	for i := range k.Economy().Regions {
		writeRegion(w, &k.Economy().Regions[i])
	}
	// Per-agent economy record, appended after the region block.
	for i := range ag {
		a := &ag[i]
		w.f64(a.Wealth)
		w.f64(a.Income)
		w.f64(a.Productivity)
		w.f64(a.Hardship)
		w.u8(a.Sector)
	}

	if w.err == nil {
		w.err = w.w.(*bufio.Writer).Flush()
	}
	if cerr := f.Close(); w.err == nil {
		w.err = cerr
	}
	if w.err != nil {
		os.Remove(path)
		return fmt.Errorf("checkpoint write: %w", w.err)
	}
	return nil
}

// Load reads a checkpoint and installs it into the kernel. The kernel is
// untouched unless the whole file parses, so a failed load preserves the
// in-memory state.
func Load(k *sim.Kernel, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("checkpoint open: %w", err)
	}
	defer f.Close()
	r := &leReader{r: bufio.NewReader(f)}

	var h Header
	h.Magic = r.u32()
	h.Version = r.u32()
	h.Generation = r.u64()
	h.NumAgents = r.u32()
	h.NumRegions = r.u32()
	h.Seed = r.u64()
	h.Timestamp = r.u64()
	if r.err != nil {
		return fmt.Errorf("checkpoint header: %w", r.err)
	}
	if h.Magic != Magic {
		return fmt.Errorf("checkpoint: bad magic 0x%08x", h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("checkpoint: unsupported version %d", h.Version)
	}

	tbl := agents.NewTable(h.NumRegions)
	loaded := make([]agents.Agent, h.NumAgents)
	for i := range loaded {
		readAgent(r, &loaded[i])
		if r.err != nil {
			return fmt.Errorf("checkpoint agent %d: %w", i, r.err)
		}
		if loaded[i].Alive && loaded[i].Region >= h.NumRegions {
			return &agents.BoundsError{What: "checkpoint agent region", Index: loaded[i].Region, Limit: h.NumRegions}
		}
	}

	regions := make([]econ.Region, h.NumRegions)
	for i := range regions {
		readRegion(r, &regions[i])
		if r.err != nil {
			return fmt.Errorf("checkpoint region %d (economy restore is required): %w", i, r.err)
		}
		regions[i].ID = uint32(i)
	}

	for i := range loaded {
		a := &loaded[i]
		a.Wealth = r.f64()
		a.Income = r.f64()
		a.Productivity = r.f64()
		a.Hardship = r.f64()
		a.Sector = r.u8()
		if r.err != nil {
			return fmt.Errorf("checkpoint agent economy %d: %w", i, r.err)
		}
	}

	tbl.Adopt(loaded)
	k.AdoptCheckpoint(h.Generation, h.Seed, tbl, regions)
	return nil
}

// writeAgent serializes fields in the data-model order; the neighbor list
// is length-prefixed with a u32.
func writeAgent(w *leWriter, a *agents.Agent) {
	w.u32(a.ID)
	w.u32(a.Region)
	w.bool(a.Alive)
	w.f64(a.Age)
	w.bool(a.Female)
	w.u32(a.ParentA)
	w.u32(a.ParentB)
	w.u32(a.LineageID)
	w.u8(a.PrimaryLang)
	w.u8(a.Dialect)
	w.f64(a.Fluency)
	w.f64(a.Openness)
	w.f64(a.Conformity)
	w.f64(a.Assertiveness)
	w.f64(a.Sociality)
	for d := 0; d < agents.BeliefDims; d++ {
		w.f64(a.X[d])
	}
	for d := 0; d < agents.BeliefDims; d++ {
		w.f64(a.B[d])
	}
	w.f64(a.BNormSq)
	w.f64(a.MComm)
	w.f64(a.MSusceptibility)
	w.f64(a.MMobility)
	w.f64(a.Wealth)
	w.f64(a.Income)
	w.f64(a.Productivity)
	w.f64(a.Hardship)
	w.u8(a.Sector)
	w.u32(uint32(len(a.Neighbors)))
	for _, n := range a.Neighbors {
		w.u32(n)
	}
}

func readAgent(r *leReader, a *agents.Agent) {
	a.ID = r.u32()
	a.Region = r.u32()
	a.Alive = r.bool()
	a.Age = r.f64()
	a.Female = r.bool()
	a.ParentA = r.u32()
	a.ParentB = r.u32()
	a.LineageID = r.u32()
	a.PrimaryLang = r.u8()
	a.Dialect = r.u8()
	a.Fluency = r.f64()
	a.Openness = r.f64()
	a.Conformity = r.f64()
	a.Assertiveness = r.f64()
	a.Sociality = r.f64()
	for d := 0; d < agents.BeliefDims; d++ {
		a.X[d] = r.f64()
	}
	for d := 0; d < agents.BeliefDims; d++ {
		a.B[d] = r.f64()
	}
	a.BNormSq = r.f64()
	a.MComm = r.f64()
	a.MSusceptibility = r.f64()
	a.MMobility = r.f64()
	a.Wealth = r.f64()
	a.Income = r.f64()
	a.Productivity = r.f64()
	a.Hardship = r.f64()
	a.Sector = r.u8()
	n := r.u32()
	if r.err != nil {
		return
	}
	if n > 0 {
		a.Neighbors = make([]uint32, n)
		for i := range a.Neighbors {
			a.Neighbors[i] = r.u32()
		}
	} else {
		a.Neighbors = nil
	}
}

func writeRegion(w *leWriter, reg *econ.Region) {
	w.f64(reg.X)
	w.f64(reg.Y)
	w.f64(reg.Latitude)
	for g := 0; g < econ.NumGoods; g++ {
		w.f64(reg.Endowment[g])
	}
	for g := 0; g < econ.NumGoods; g++ {
		w.f64(reg.Production[g])
	}
	for g := 0; g < econ.NumGoods; g++ {
		w.f64(reg.Demand[g])
	}
	for g := 0; g < econ.NumGoods; g++ {
		w.f64(reg.Prices[g])
	}
	for g := 0; g < econ.NumGoods; g++ {
		w.f64(reg.Specialization[g])
	}
	w.f64(reg.Development)
	w.f64(reg.Welfare)
	w.f64(reg.Hardship)
	w.f64(reg.Inequality)
	w.f64(reg.Efficiency)
	w.f64(reg.SystemStability)
	w.u8(uint8(reg.System))
	w.u32(uint32(len(reg.TradePartners)))
	for _, p := range reg.TradePartners {
		w.u32(p)
	}
}

func readRegion(r *leReader, reg *econ.Region) {
	reg.X = r.f64()
	reg.Y = r.f64()
	reg.Latitude = r.f64()
	for g := 0; g < econ.NumGoods; g++ {
		reg.Endowment[g] = r.f64()
	}
	for g := 0; g < econ.NumGoods; g++ {
		reg.Production[g] = r.f64()
	}
	for g := 0; g < econ.NumGoods; g++ {
		reg.Demand[g] = r.f64()
	}
	for g := 0; g < econ.NumGoods; g++ {
		reg.Prices[g] = r.f64()
	}
	for g := 0; g < econ.NumGoods; g++ {
		reg.Specialization[g] = r.f64()
	}
	reg.Development = r.f64()
	reg.Welfare = r.f64()
	reg.Hardship = r.f64()
	reg.Inequality = r.f64()
	reg.Efficiency = r.f64()
	reg.SystemStability = r.f64()
	reg.System = econ.System(r.u8())
	n := r.u32()
	if r.err != nil {
		return
	}
	if n > 0 {
		reg.TradePartners = make([]uint32, n)
		for i := range reg.TradePartners {
			reg.TradePartners[i] = r.u32()
		}
	} else {
		reg.TradePartners = nil
	}
}

// leWriter writes little-endian primitives with a sticky error.
type leWriter struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (w *leWriter) write(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

func (w *leWriter) u8(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

func (w *leWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *leWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

func (w *leWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

func (w *leWriter) f64(v float64) {
	w.u64(math.Float64bits(v))
}

// leReader reads little-endian primitives with a sticky error.
type leReader struct {
	r   io.Reader
	err error
	buf [8]byte
}

func (r *leReader) read(n int) []byte {
	if r.err != nil {
		return r.buf[:n]
	}
	_, r.err = io.ReadFull(r.r, r.buf[:n])
	return r.buf[:n]
}

func (r *leReader) u8() uint8 {
	return r.read(1)[0]
}

func (r *leReader) bool() bool {
	return r.u8() != 0
}

func (r *leReader) u32() uint32 {
	return binary.LittleEndian.Uint32(r.read(4))
}

func (r *leReader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.read(8))
}

func (r *leReader) f64() float64 {
	return math.Float64frombits(r.u64())
}
