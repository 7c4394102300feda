// Command arenasim plays many seeded battles between two archetypes offline
// and reports how they fared.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"agent-arena/arena"
)

type options struct {
	Agent1    string
	Agent2    string
	Battles   int
	Seed      int64
	MaxRounds int
	Workers   int
}

// Report summarizes a batch of simulated battles.
type Report struct {
	Agent1       string  `json:"agent1"`
	Agent2       string  `json:"agent2"`
	Battles      int     `json:"battles"`
	Seed         int64   `json:"seed,string"`
	Agent1Wins   int     `json:"agent1Wins"`
	Agent2Wins   int     `json:"agent2Wins"`
	Unfinished   int     `json:"unfinished"`
	Agent1WinPct float64 `json:"agent1WinPct"`
	Agent2WinPct float64 `json:"agent2WinPct"`
	AvgRounds    float64 `json:"avgRounds"`
	MaxRounds    int     `json:"maxRounds"`
}

func main() {
	var (
		opts options
		out  string
	)
	flag.StringVar(&opts.Agent1, "a", arena.ArchetypeBitcoin, "archetype of the first agent")
	flag.StringVar(&opts.Agent2, "b", arena.ArchetypeEthereum, "archetype of the second agent")
	flag.IntVar(&opts.Battles, "n", 1000, "number of battles")
	flag.Int64Var(&opts.Seed, "seed", 0, "base seed; battle i uses seed+i (0 = time based)")
	flag.IntVar(&opts.MaxRounds, "max-rounds", arena.DefaultMaxRounds, "round cap per battle")
	flag.IntVar(&opts.Workers, "workers", runtime.NumCPU(), "parallel simulations")
	flag.StringVar(&out, "out", "", "write the JSON report to this file instead of stdout")
	flag.Parse()

	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	report, err := run(context.Background(), opts)
	if err != nil {
		log.Fatalf("[ArenaSim] %v", err)
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			log.Fatalf("[ArenaSim] Create %s: %v", out, err)
		}
		defer f.Close()
		w = f
	}
	if err := writeReport(w, report); err != nil {
		log.Fatalf("[ArenaSim] Write report: %v", err)
	}
}

func run(ctx context.Context, opts options) (Report, error) {
	if opts.Battles <= 0 {
		return Report{}, fmt.Errorf("battle count must be positive, got %d", opts.Battles)
	}
	for _, t := range []string{opts.Agent1, opts.Agent2} {
		if !arena.IsKnownArchetype(t) {
			return Report{}, fmt.Errorf("unknown archetype %q (known: %v)", t, arena.Archetypes())
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	a1 := arena.AgentDescriptor{ID: "sim-1", Name: "Sim " + opts.Agent1, Type: opts.Agent1}
	a2 := arena.AgentDescriptor{ID: "sim-2", Name: "Sim " + opts.Agent2, Type: opts.Agent2}

	results := make([]arena.BattleSnapshot, opts.Battles)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range results {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			snap, err := arena.Simulate(opts.Seed+int64(i), a1, a2, opts.MaxRounds)
			if err != nil {
				return fmt.Errorf("battle %d: %w", i, err)
			}
			results[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return summarize(opts, results), nil
}

func summarize(opts options, results []arena.BattleSnapshot) Report {
	r := Report{
		Agent1:  opts.Agent1,
		Agent2:  opts.Agent2,
		Battles: len(results),
		Seed:    opts.Seed,
	}
	totalRounds := 0
	for _, s := range results {
		totalRounds += s.RoundNumber
		if s.RoundNumber > r.MaxRounds {
			r.MaxRounds = s.RoundNumber
		}
		switch s.WinnerSide {
		case arena.Side1:
			r.Agent1Wins++
		case arena.Side2:
			r.Agent2Wins++
		default:
			r.Unfinished++
		}
	}
	if n := float64(len(results)); n > 0 {
		r.Agent1WinPct = float64(r.Agent1Wins) / n * 100
		r.Agent2WinPct = float64(r.Agent2Wins) / n * 100
		r.AvgRounds = float64(totalRounds) / n
	}
	return r
}

func writeReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
