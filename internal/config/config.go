// Package config holds kernel configuration, YAML loading, and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KernelConfig controls every tunable of the simulation kernel.
type KernelConfig struct {
	Population     uint32  `yaml:"population"`
	Regions        uint32  `yaml:"regions"`
	AvgConnections uint32  `yaml:"avg_connections"`
	RewireProb     float64 `yaml:"rewire_prob"`

	StepSize float64 `yaml:"step_size"`
	SimFloor float64 `yaml:"sim_floor"`

	TicksPerYear   int     `yaml:"ticks_per_year"`
	MaxAgeYears    float64 `yaml:"max_age_years"`
	RegionCapacity float64 `yaml:"region_capacity"`

	DemographyEnabled bool `yaml:"demography"`
	UseMeanField      bool `yaml:"use_mean_field"`

	Seed          uint64 `yaml:"seed"`
	MaxPopulation uint32 `yaml:"max_population"`
	Workers       int    `yaml:"workers"`

	// Strict enables debug-build validation: finiteness and range checks
	// after belief updates, the trade conservation check after each economy
	// tick, and a graph symmetry / neighbor-id check after each compaction.
	// Numeric violations become fatal instead of clamp-and-warn. Agent
	// region indices are checked when agents are added to the table or
	// loaded from a checkpoint, not at each agent→region indexing site.
	Strict bool `yaml:"strict"`

	ClusterK        int     `yaml:"cluster_k"`
	ClusterAlpha    float64 `yaml:"cluster_alpha"`
	ReassignEvery   uint64  `yaml:"reassign_every"`
	InnovationNoise float64 `yaml:"innovation_noise"`

	AnchorBase         float64 `yaml:"anchor_base"`
	AnchorAgeWeight    float64 `yaml:"anchor_age_weight"`
	AnchorAssertWeight float64 `yaml:"anchor_assert_weight"`
	AnchorMax          float64 `yaml:"anchor_max"`

	MetricsPath string `yaml:"metrics_path"`
	EventLogDir string `yaml:"event_log_dir"`
	HistoryDB   string `yaml:"history_db"`
	HTTPPort    int    `yaml:"http_port"`
}

// ConfigError reports an invalid or nonsensical configuration value.
// Fatal at init time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns the baseline configuration matching the reference scenario:
// 50k agents across 200 regions on a k=8, p=0.05 small-world graph.
func Default() KernelConfig {
	return KernelConfig{
		Population:     50_000,
		Regions:        200,
		AvgConnections: 8,
		RewireProb:     0.05,

		StepSize: 0.15,
		SimFloor: 0.05,

		TicksPerYear:   10,
		MaxAgeYears:    100,
		RegionCapacity: 1000,

		DemographyEnabled: true,
		UseMeanField:      false,

		Seed:          42,
		MaxPopulation: 0, // resolved to 4× population in Normalize
		Workers:       1,

		ClusterK:        8,
		ClusterAlpha:    0.05,
		ReassignEvery:   1000,
		InnovationNoise: 0.03,

		AnchorBase:         0.1,
		AnchorAgeWeight:    0.3,
		AnchorAssertWeight: 0.2,
		AnchorMax:          0.8,

		MetricsPath: "data/metrics.csv",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the normalized defaults.
func Load(path string) (KernelConfig, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Normalize fills derived defaults that depend on other fields.
func (c *KernelConfig) Normalize() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxPopulation == 0 {
		c.MaxPopulation = c.Population * 4
	}
	if c.ClusterK < 1 {
		c.ClusterK = 8
	}
	if c.ClusterAlpha <= 0 {
		c.ClusterAlpha = 0.05
	}
	if c.ReassignEvery == 0 {
		c.ReassignEvery = 1000
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "data/metrics.csv"
	}
}

// Validate rejects nonsensical configurations. Called once at init; a
// returned *ConfigError is fatal.
func (c *KernelConfig) Validate() error {
	switch {
	case c.Population == 0:
		return &ConfigError{"population", "must be > 0"}
	case c.Regions == 0:
		return &ConfigError{"regions", "must be > 0"}
	case c.TicksPerYear <= 0:
		return &ConfigError{"ticks_per_year", "must be > 0"}
	case c.MaxAgeYears <= 0:
		return &ConfigError{"max_age_years", "must be > 0"}
	case c.RegionCapacity <= 0:
		return &ConfigError{"region_capacity", "must be > 0"}
	case c.RewireProb < 0 || c.RewireProb > 1:
		return &ConfigError{"rewire_prob", "must be in [0, 1]"}
	case c.SimFloor < 0 || c.SimFloor > 1:
		return &ConfigError{"sim_floor", "must be in [0, 1]"}
	case c.StepSize < 0:
		return &ConfigError{"step_size", "must be >= 0"}
	case c.MaxPopulation < c.Population:
		return &ConfigError{"max_population", "must be >= population"}
	}
	return nil
}
