package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/rescell/res"
)

// stressConfig holds the parsed 'rescell stress' arguments.
type stressConfig struct {
	configPath string
	goroutines int
	ops        int
	writes     int // percent of operations that borrow mutably
	shards     int
}

// stressResult is what one stress run observed.
type stressResult struct {
	reads   int64
	writes  int64
	final   int64
	elapsed time.Duration
}

func (r stressResult) ops() int64 {
	return r.reads + r.writes
}

// shardCounts is the per-shard tally, kept outside the cell under test.
type shardCounts struct {
	reads, writes int64
}

// stressCommand implements 'rescell stress'.
//
// Every shard clones the cell, performs its share of operations and
// releases its handle. The goroutine limit only applies to the
// cross-goroutine strategy; single-owner cells run every shard on the
// calling goroutine.
func stressCommand(args []string) int {
	cfg, err := parseStressArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if err := applyConfig(cfg.configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if !res.Blocking && cfg.goroutines > 1 {
		log.Printf("warning: %s cells stay on one goroutine, ignoring -goroutines %d", res.Strategy, cfg.goroutines)
		cfg.goroutines = 1
	}

	result, err := runStress(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	printStress(os.Stdout, cfg, result)
	return 0
}

func parseStressArgs(args []string) (*stressConfig, error) {
	cfg := &stressConfig{}

	fs := flag.NewFlagSet("stress", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.configPath, "config", "", "diagnostics config file (JSON)")
	fs.IntVar(&cfg.goroutines, "goroutines", 4, "concurrent workers (cross-goroutine build)")
	fs.IntVar(&cfg.ops, "ops", 100000, "total operations")
	fs.IntVar(&cfg.writes, "writes", 10, "percent of operations that write")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case cfg.goroutines < 1:
		return nil, fmt.Errorf("-goroutines must be at least 1, got %d", cfg.goroutines)
	case cfg.ops < 1:
		return nil, fmt.Errorf("-ops must be at least 1, got %d", cfg.ops)
	case cfg.writes < 0 || cfg.writes > 100:
		return nil, fmt.Errorf("-writes must be between 0 and 100, got %d", cfg.writes)
	}

	cfg.shards = cfg.goroutines * 4
	if cfg.shards > cfg.ops {
		cfg.shards = cfg.ops
	}
	return cfg, nil
}

// isWrite spreads writes evenly over the operation sequence.
func isWrite(op, percent int) bool {
	return (op*37)%100 < percent
}

// runStress hammers one counter cell and checks that every write landed.
func runStress(ctx context.Context, cfg *stressConfig) (stressResult, error) {
	counter := res.New(int64(0))
	counts := make([]shardCounts, cfg.shards)

	shard := func(n int) error {
		h := counter.Clone()
		defer h.Release()

		from := n * cfg.ops / cfg.shards
		to := (n + 1) * cfg.ops / cfg.shards
		for op := from; op < to; op++ {
			if isWrite(op, cfg.writes) {
				w := h.BorrowMut()
				*w.Get()++
				w.Release()
				counts[n].writes++
				continue
			}

			r := h.Borrow()
			if *r.Get() < 0 {
				r.Release()
				return fmt.Errorf("shard %d: counter went negative", n)
			}
			r.Release()
			counts[n].reads++
		}
		return nil
	}

	start := time.Now()
	if res.Blocking {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.goroutines)
		for n := 0; n < cfg.shards; n++ {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return shard(n)
			})
		}
		if err := g.Wait(); err != nil {
			counter.Release()
			return stressResult{}, err
		}
	} else {
		for n := 0; n < cfg.shards; n++ {
			if err := shard(n); err != nil {
				counter.Release()
				return stressResult{}, err
			}
		}
	}
	elapsed := time.Since(start)

	var result stressResult
	for _, c := range counts {
		result.reads += c.reads
		result.writes += c.writes
	}
	result.elapsed = elapsed

	final, ok := counter.Unwrap()
	if !ok {
		return result, fmt.Errorf("cell still shared after all shards finished (%d handles)", counter.Count())
	}
	result.final = final

	if result.final != result.writes {
		return result, fmt.Errorf("lost writes: counter is %d, expected %d", result.final, result.writes)
	}
	return result, nil
}

//nolint:errcheck // Error handling omitted for stdout output formatting
func printStress(w io.Writer, cfg *stressConfig, r stressResult) {
	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(r.ops()) / r.elapsed.Seconds()
	}

	fmt.Fprintf(w, "Strategy:    %s (%d goroutines, %d shards)\n", res.Strategy, cfg.goroutines, cfg.shards)
	fmt.Fprintf(w, "Operations:  %s (%s reads, %s writes)\n",
		humanize.Comma(r.ops()), humanize.Comma(r.reads), humanize.Comma(r.writes))
	fmt.Fprintf(w, "Counter:     %s (ok)\n", humanize.Comma(r.final))
	fmt.Fprintf(w, "Elapsed:     %s\n", r.elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "Throughput:  %s ops/s\n", humanize.CommafWithDigits(rate, 0))
}
