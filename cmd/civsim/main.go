// Command civsim runs the emergent-civilization simulation kernel behind an
// interactive command shell.
package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"

	"github.com/evanwolo/emergent-civ-sim/internal/api"
	"github.com/evanwolo/emergent-civ-sim/internal/config"
	"github.com/evanwolo/emergent-civ-sim/internal/eventlog"
	"github.com/evanwolo/emergent-civ-sim/internal/persistence"
	"github.com/evanwolo/emergent-civ-sim/internal/shell"
	"github.com/evanwolo/emergent-civ-sim/internal/sim"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "", "YAML config file (defaults apply when empty)")
		seed       = flag.Uint64("seed", 0, "override master RNG seed")
		population = flag.Uint("population", 0, "override population")
		regions    = flag.Uint("regions", 0, "override region count")
		workers    = flag.Int("workers", 0, "override belief-update worker count")
		meanField  = flag.Bool("mean-field", false, "use the mean-field belief approximation")
		logLevel   = flag.String("log-level", "info", "slog level: debug, info, warn, error")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		return 1
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *population != 0 {
		cfg.Population = uint32(*population)
		cfg.MaxPopulation = 0
	}
	if *regions != 0 {
		cfg.Regions = uint32(*regions)
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *meanField {
		cfg.UseMeanField = true
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return 1
	}

	slog.Info("building kernel",
		"population", cfg.Population,
		"regions", cfg.Regions,
		"avg_connections", cfg.AvgConnections,
		"rewire_prob", cfg.RewireProb,
		"seed", cfg.Seed,
		"workers", cfg.Workers,
		"mean_field", cfg.UseMeanField,
	)

	kernel, err := sim.NewKernel(cfg)
	if err != nil {
		slog.Error("kernel init failed", "error", err)
		return 1
	}

	// Event log (optional).
	runID := ""
	if cfg.EventLogDir != "" {
		log, err := eventlog.Open(cfg.EventLogDir)
		if err != nil {
			slog.Error("event log open failed", "error", err)
			return 1
		}
		defer log.Close()
		kernel.SetEventSink(eventlog.Sink{L: log})
		runID = log.RunID()
		slog.Info("event log opened", "run_id", runID)
	}

	// Run-history database (optional).
	var db *persistence.DB
	if cfg.HistoryDB != "" {
		db, err = persistence.Open(cfg.HistoryDB)
		if err != nil {
			slog.Error("history db open failed", "error", err)
			return 1
		}
		defer db.Close()
		if runID != "" {
			db.SetMeta(runID, "seed", strconv.FormatUint(cfg.Seed, 10))
		}
		slog.Info("history db opened", "path", cfg.HistoryDB)
	}

	sh, err := shell.New(kernel, shell.Options{
		MetricsPath: cfg.MetricsPath,
		DB:          db,
		RunID:       runID,
	})
	if err != nil {
		slog.Error("shell init failed", "error", err)
		return 1
	}

	// Read-only HTTP observer (optional).
	if cfg.HTTPPort > 0 {
		srv := &api.Server{K: kernel, Mu: &sh.Mu, Port: cfg.HTTPPort}
		srv.Start()
	}

	if err := sh.Run(); err != nil {
		slog.Error("fatal", "error", err)
		return 1
	}
	return 0
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
