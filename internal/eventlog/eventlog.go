// Package eventlog streams simulation events as zstd-compressed JSONL.
// One file per run, named by a run UUID, so parallel experiments never
// clobber each other's logs.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// Event types.
const (
	TypeBirth        = "BIRTH"
	TypeDeath        = "DEATH"
	TypeTrade        = "TRADE"
	TypeSystemChange = "SYSTEM_CHANGE"
)

// Event is one record in the stream.
type Event struct {
	Tick      uint64  `json:"tick"`
	Type      string  `json:"type"`
	AgentID   uint32  `json:"agent_id,omitempty"`
	Region    uint32  `json:"region"`
	Magnitude float64 `json:"magnitude,omitempty"`
	Details   string  `json:"details,omitempty"`
}

// Log writes events to a zstd-compressed JSONL file.
type Log struct {
	runID string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

// Open creates the log file under dir. The run id is embedded in the
// filename and returned by RunID.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	path := filepath.Join(dir, fmt.Sprintf("events-%s.jsonl.zst", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Log{
		runID: runID,
		f:     f,
		enc:   enc,
		w:     bufio.NewWriter(enc),
	}, nil
}

// RunID returns the UUID of this run.
func (l *Log) RunID() string {
	return l.runID
}

// Write appends one event. Safe for concurrent use.
func (l *Log) Write(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	return l.w.WriteByte('\n')
}

// Close flushes and closes the stream.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	if err := l.enc.Close(); err != nil {
		return err
	}
	return l.f.Close()
}

// Sink adapts the log to the kernel's event interface.
type Sink struct {
	L *Log
}

func (s Sink) Birth(tick uint64, agentID, region, parent uint32) {
	s.L.Write(Event{Tick: tick, Type: TypeBirth, AgentID: agentID, Region: region,
		Magnitude: 1, Details: fmt.Sprintf("parent=%d", parent)})
}

func (s Sink) Death(tick uint64, agentID, region uint32, age float64) {
	s.L.Write(Event{Tick: tick, Type: TypeDeath, AgentID: agentID, Region: region,
		Magnitude: 1, Details: fmt.Sprintf("age=%.1f", age)})
}

func (s Sink) SystemChange(tick uint64, region uint32, from, to string) {
	s.L.Write(Event{Tick: tick, Type: TypeSystemChange, Region: region,
		Magnitude: 1, Details: fmt.Sprintf("from=%s;to=%s", from, to)})
}

func (s Sink) TradeTick(tick uint64, volume float64) {
	s.L.Write(Event{Tick: tick, Type: TypeTrade, Magnitude: volume})
}
