// Package api serves read-only kernel observations over HTTP. GET only;
// anyone can check in on the world while the shell drives it.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/evanwolo/emergent-civ-sim/internal/sim"
)

// Server exposes kernel metrics and regional summaries. Mu must be the same
// mutex the command shell holds during ticks.
type Server struct {
	K    *sim.Kernel
	Mu   *sync.Mutex
	Port int
}

// Start begins serving in a goroutine.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/api/v1/regions", s.handleRegions)

	addr := fmt.Sprintf(":%d", s.Port)
	go func() {
		slog.Info("observer API listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("observer API stopped", "error", err)
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	resp := map[string]any{
		"generation": s.K.Generation(),
		"population": s.K.Table().Live(),
		"regions":    s.K.Table().NumRegions(),
		"warnings":   s.K.WarnCount(),
	}
	s.Mu.Unlock()
	writeJSON(w, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.Mu.Lock()
	m := s.K.ComputeMetrics()
	s.Mu.Unlock()
	writeJSON(w, m)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	type regionRow struct {
		ID          uint32  `json:"id"`
		System      string  `json:"system"`
		Population  uint32  `json:"population"`
		Development float64 `json:"development"`
		Welfare     float64 `json:"welfare"`
		Hardship    float64 `json:"hardship"`
		Inequality  float64 `json:"inequality"`
	}

	s.Mu.Lock()
	eco := s.K.Economy()
	pops := s.K.Table().RegionPopulations()
	rows := make([]regionRow, len(eco.Regions))
	for i := range eco.Regions {
		reg := &eco.Regions[i]
		rows[i] = regionRow{
			ID:          reg.ID,
			System:      reg.System.String(),
			Population:  pops[i],
			Development: reg.Development,
			Welfare:     reg.Welfare,
			Hardship:    reg.Hardship,
			Inequality:  reg.Inequality,
		}
	}
	s.Mu.Unlock()
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("observer encode failed", "error", err)
	}
}
