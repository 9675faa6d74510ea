// Package shell provides the line-oriented command interface over the
// kernel: stepping, metrics, snapshots, clustering, checkpoints.
package shell

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"

	"github.com/evanwolo/emergent-civ-sim/internal/agents"
	"github.com/evanwolo/emergent-civ-sim/internal/checkpoint"
	"github.com/evanwolo/emergent-civ-sim/internal/cluster"
	"github.com/evanwolo/emergent-civ-sim/internal/config"
	"github.com/evanwolo/emergent-civ-sim/internal/persistence"
	"github.com/evanwolo/emergent-civ-sim/internal/sim"
)

var errQuit = errors.New("quit")

// CommandError reports an unknown verb or bad arguments. Recoverable: the
// shell prints help and continues.
type CommandError struct {
	Msg string
}

func (e *CommandError) Error() string {
	return e.Msg
}

// Options wires the shell's collaborators.
type Options struct {
	HistoryFile string
	MetricsPath string
	DB          *persistence.DB // may be nil
	RunID       string
}

// Shell is the interactive command loop.
type Shell struct {
	k    *sim.Kernel
	rl   *readline.Instance
	opts Options

	// Mu serializes kernel access between the command loop and the HTTP
	// observer.
	Mu sync.Mutex
}

// New creates a shell bound to a kernel.
func New(k *sim.Kernel, opts Options) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "civsim> ",
		HistoryFile:     opts.HistoryFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, err
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "data/metrics.csv"
	}
	return &Shell{k: k, rl: rl, opts: opts}, nil
}

// Run reads commands until quit or EOF. Unknown verbs and bad arguments
// print help and continue; only fatal kernel errors propagate.
func (s *Shell) Run() error {
	defer s.rl.Close()
	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := s.dispatch(strings.Fields(line)); err != nil {
			if err == errQuit {
				return nil
			}
			var cmdErr *CommandError
			if errors.As(err, &cmdErr) {
				fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
				s.printHelp()
				continue
			}
			// Numeric/bounds errors from the tick are fatal.
			return err
		}
	}
}

func (s *Shell) dispatch(args []string) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	switch args[0] {
	case "step":
		return s.cmdStep(args[1:])
	case "run":
		return s.cmdRun(args[1:])
	case "metrics":
		return s.cmdMetrics()
	case "state":
		return s.cmdState(args[1:])
	case "reset":
		return s.cmdReset(args[1:])
	case "cluster":
		return s.cmdCluster(args[1:])
	case "economy":
		return s.cmdEconomy()
	case "demography":
		return s.cmdDemography()
	case "save":
		return s.cmdCheckpoint(args[1:], true)
	case "load":
		return s.cmdCheckpoint(args[1:], false)
	case "help":
		s.printHelp()
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return &CommandError{Msg: "unknown command: " + args[0]}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(os.Stderr, `Commands:
  step N               advance N ticks, print JSON snapshot
  run T L              advance T ticks, log metrics CSV every L ticks
  metrics              print current scalar metrics
  state [traits]       JSON snapshot (traits adds personality fields)
  reset [N R k p]      rebuild: population, regions, degree, rewire prob
  cluster kmeans K     re-cluster beliefs with K centroids
  cluster dbscan E M   density clustering with radius E, min points M
  economy              per-region economic summary
  demography           age-band population pyramid
  save PATH            write binary checkpoint
  load PATH            restore binary checkpoint
  quit                 exit
`)
}

func (s *Shell) cmdStep(args []string) error {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return &CommandError{Msg: "step: N must be a positive integer"}
		}
		n = v
	}
	for i := 0; i < n; i++ {
		if err := s.k.Step(); err != nil {
			return err
		}
		if (i+1)%100 == 0 || i == n-1 {
			fmt.Fprintf(os.Stderr, "Tick %d/%d\r", i+1, n)
		}
	}
	fmt.Fprintln(os.Stderr)

	snap, err := s.k.SnapshotJSON(false)
	if err != nil {
		return err
	}
	fmt.Println(string(snap))
	return nil
}

func (s *Shell) cmdRun(args []string) error {
	t, logEvery := 1000, 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			return &CommandError{Msg: "run: T must be a positive integer"}
		}
		t = v
	}
	if len(args) > 1 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			return &CommandError{Msg: "run: L must be a positive integer"}
		}
		logEvery = v
	}

	if err := os.MkdirAll(filepath.Dir(s.opts.MetricsPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: metrics dir: %v\n", err)
		return nil
	}
	f, err := os.Create(s.opts.MetricsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: metrics file: %v\n", err)
		return nil
	}
	defer f.Close()
	fmt.Fprintln(f, "generation,polarization_mean,polarization_std,avg_openness,avg_conformity,welfare,inequality,hardship,trade_volume,population")

	for i := 0; i < t; i++ {
		if err := s.k.Step(); err != nil {
			return err
		}
		if (i+1)%100 == 0 || i == t-1 {
			fmt.Fprintf(os.Stderr, "Tick %d/%d\r", i+1, t)
		}
		if i%logEvery == 0 {
			m := s.k.ComputeMetrics()
			fmt.Fprintf(f, "%d,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%.6f,%d\n",
				m.Generation, m.PolarizationMean, m.PolarizationStd,
				m.AvgOpenness, m.AvgConformity, m.Welfare, m.Inequality,
				m.Hardship, m.TradeVolume, m.Population)
			if s.opts.DB != nil {
				if err := s.opts.DB.SaveMetrics(s.opts.RunID, m); err != nil {
					fmt.Fprintf(os.Stderr, "error: history db: %v\n", err)
				}
				if err := s.opts.DB.SaveRegions(s.opts.RunID, m.Generation,
					s.k.Economy().Regions, s.k.Table().RegionPopulations()); err != nil {
					fmt.Fprintf(os.Stderr, "error: history db: %v\n", err)
				}
			}
		}
	}
	fmt.Fprintln(os.Stderr)
	fmt.Printf("Completed %d ticks. Metrics written to %s\n", t, s.opts.MetricsPath)
	return nil
}

func (s *Shell) cmdMetrics() error {
	m := s.k.ComputeMetrics()
	fmt.Printf("Generation: %d\n", m.Generation)
	fmt.Printf("Population: %s\n", humanize.Comma(int64(m.Population)))
	fmt.Printf("Polarization: %.4f (±%.4f)\n", m.PolarizationMean, m.PolarizationStd)
	fmt.Printf("Avg Openness: %.4f\n", m.AvgOpenness)
	fmt.Printf("Avg Conformity: %.4f\n", m.AvgConformity)
	fmt.Printf("Welfare: %.4f\n", m.Welfare)
	fmt.Printf("Inequality: %.4f\n", m.Inequality)
	fmt.Printf("Hardship: %.4f\n", m.Hardship)
	fmt.Printf("Trade Volume: %.4f\n", m.TradeVolume)
	return nil
}

func (s *Shell) cmdState(args []string) error {
	traits := len(args) > 0 && args[0] == "traits"
	snap, err := s.k.SnapshotJSON(traits)
	if err != nil {
		return err
	}
	fmt.Println(string(snap))
	return nil
}

func (s *Shell) cmdReset(args []string) error {
	cfg := s.k.Config()
	parse := func(i int, dst *uint32) error {
		if len(args) <= i {
			return nil
		}
		v, err := strconv.ParseUint(args[i], 10, 32)
		if err != nil {
			return &CommandError{Msg: "reset: bad argument " + args[i]}
		}
		*dst = uint32(v)
		return nil
	}
	if err := parse(0, &cfg.Population); err != nil {
		return err
	}
	if err := parse(1, &cfg.Regions); err != nil {
		return err
	}
	if err := parse(2, &cfg.AvgConnections); err != nil {
		return err
	}
	if len(args) > 3 {
		p, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return &CommandError{Msg: "reset: bad rewire probability " + args[3]}
		}
		cfg.RewireProb = p
	}
	cfg.MaxPopulation = 0 // re-derive from the new population
	if err := s.k.Reset(cfg); err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			return &CommandError{Msg: cfgErr.Error()}
		}
		return err
	}
	fmt.Printf("Reset: %s agents, %d regions\n", humanize.Comma(int64(cfg.Population)), cfg.Regions)
	return nil
}

func (s *Shell) cmdCluster(args []string) error {
	if len(args) == 0 {
		return &CommandError{Msg: "cluster: expected 'kmeans K' or 'dbscan E M'"}
	}
	switch args[0] {
	case "kmeans":
		if len(args) < 2 {
			return &CommandError{Msg: "cluster kmeans: missing K"}
		}
		kk, err := strconv.Atoi(args[1])
		if err != nil || kk < 1 {
			return &CommandError{Msg: "cluster kmeans: K must be a positive integer"}
		}
		s.reclusterKMeans(kk)
		return nil
	case "dbscan":
		if len(args) < 3 {
			return &CommandError{Msg: "cluster dbscan: missing eps or minPts"}
		}
		eps, err := strconv.ParseFloat(args[1], 64)
		if err != nil || eps <= 0 {
			return &CommandError{Msg: "cluster dbscan: eps must be positive"}
		}
		minPts, err := strconv.Atoi(args[2])
		if err != nil || minPts < 1 {
			return &CommandError{Msg: "cluster dbscan: minPts must be a positive integer"}
		}
		res := cluster.DBSCAN(s.k.Table(), eps, minPts)
		noise := 0
		for i, l := range res.Labels {
			if s.k.Table().At(uint32(i)).Alive && l == cluster.Noise {
				noise++
			}
		}
		fmt.Printf("DBSCAN: %d clusters, %d noise points\n", res.NumClusters, noise)
		return nil
	default:
		return &CommandError{Msg: "cluster: unknown method " + args[0]}
	}
}

func (s *Shell) reclusterKMeans(k int) {
	cfg := s.k.Config()
	r := s.k.ClusterRNG()
	km := cluster.NewKMeans(k, cfg.ClusterAlpha, cfg.ReassignEvery, s.k.Table(), r)
	s.k.ReplaceClusters(km)

	for _, sum := range km.Summaries(s.k.Table()) {
		fmt.Printf("cluster %d: size=%d coherence=%.4f charisma=%.4f centroid=[%.4f %.4f %.4f %.4f] leaning=%s\n",
			sum.ID, sum.Size, sum.Coherence, sum.CharismaDensity,
			sum.Centroid[0], sum.Centroid[1], sum.Centroid[2], sum.Centroid[3],
			leaning(sum.Centroid))
	}
}

// leaning names the axis pole a centroid leans toward hardest.
func leaning(c [agents.BeliefDims]float64) string {
	best, bestAbs := 0, 0.0
	for k, v := range c {
		if a := math.Abs(v); a > bestAbs {
			best, bestAbs = k, a
		}
	}
	if bestAbs < 0.1 {
		return "centrist"
	}
	if c[best] < 0 {
		return agents.AxisNeg[best]
	}
	return agents.AxisPos[best]
}

func (s *Shell) cmdEconomy() error {
	eco := s.k.Economy()
	pops := s.k.Table().RegionPopulations()
	fmt.Println("region  system       pop     dev    welfare hardship ineq   food$  energy$ tools$ services$ luxury$")
	for i := range eco.Regions {
		reg := &eco.Regions[i]
		fmt.Printf("%-7d %-12s %-7s %.3f  %.3f   %.3f    %.3f  %.3f  %.3f   %.3f  %.3f     %.3f\n",
			reg.ID, reg.System, humanize.Comma(int64(pops[i])), reg.Development,
			reg.Welfare, reg.Hardship, reg.Inequality,
			reg.Prices[0], reg.Prices[1], reg.Prices[2], reg.Prices[3], reg.Prices[4])
	}
	return nil
}

func (s *Shell) cmdDemography() error {
	bands := []struct {
		label  string
		lo, hi float64
	}{
		{"0-5", 0, 5}, {"5-15", 5, 15}, {"15-50", 15, 50},
		{"50-70", 50, 70}, {"70-85", 70, 85}, {"85-90", 85, 90}, {"90+", 90, 1e9},
	}
	counts := make([]int, len(bands))
	females := make([]int, len(bands))
	ag := s.k.Table().Agents()
	for i := range ag {
		a := &ag[i]
		if !a.Alive {
			continue
		}
		for bi, b := range bands {
			if a.Age >= b.lo && a.Age < b.hi {
				counts[bi]++
				if a.Female {
					females[bi]++
				}
				break
			}
		}
	}
	totals := s.k.LifetimeTotals()
	fmt.Printf("Births: %d  Deaths: %d  Moves: %d\n", totals.Births, totals.Deaths, totals.Moves)
	for bi, b := range bands {
		fmt.Printf("%-6s %8s  (%s female)\n", b.label,
			humanize.Comma(int64(counts[bi])), humanize.Comma(int64(females[bi])))
	}
	return nil
}

func (s *Shell) cmdCheckpoint(args []string, save bool) error {
	if len(args) < 1 {
		return &CommandError{Msg: "expected a file path"}
	}
	path := args[0]
	if save {
		if err := checkpoint.Save(s.k, path); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return nil
		}
		fmt.Printf("Checkpoint saved to %s\n", path)
		return nil
	}
	if err := checkpoint.Load(s.k, path); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil
	}
	fmt.Printf("Checkpoint restored from %s (generation %d)\n", path, s.k.Generation())
	return nil
}
