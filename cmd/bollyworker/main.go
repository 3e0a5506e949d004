// Command bollyworker is a small demo and stress harness for the
// bollywood actor runtime: spawn a pool, fan a batch of messages out
// across a set of actors, and report how the worker pool handled it.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/lguibr/bollywood"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bollyworker",
		Short: "Run and benchmark a bollywood actor pool",
	}
	root.AddCommand(newRunCmd(), newBenchCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var workers int
	var actors int
	var messages int
	var verbose bool
	var lbPeriod time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Spawn a pool, dispatch a batch of messages, and report stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := bollywood.DefaultManagerConfig()
			if workers > 0 {
				cfg.WorkerCount = workers
				cfg.MaxWorkerCount = 2 * workers
			}
			cfg.Verbose = verbose
			cfg.LoadBalancerPeriod = lbPeriod

			m := bollywood.NewManager(cfg)
			defer m.Close()

			pids := make([]*bollywood.Actor, actors)
			for i := range pids {
				pids[i] = m.Spawn(0)
			}

			var processed int64
			for i := 0; i < messages; i++ {
				a := pids[rand.Intn(len(pids))]
				a.Async(func() {
					atomic.AddInt64(&processed, 1)
				})
			}

			start := time.Now()
			m.Run(true)
			elapsed := time.Since(start)

			stats := m.Stats()
			fmt.Printf("processed %d messages across %d actors on %d workers in %s\n",
				atomic.LoadInt64(&processed), actors, stats.WorkerCount, elapsed)
			for i, p := range stats.Processed {
				fmt.Printf("  worker %d: processed=%d requested=%d\n", i, p, stats.Requested[i])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (0 = hardware concurrency)")
	cmd.Flags().IntVar(&actors, "actors", 16, "number of actors to spawn")
	cmd.Flags().IntVar(&messages, "messages", 100_000, "number of messages to dispatch")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log panics and load balancer growth")
	cmd.Flags().DurationVar(&lbPeriod, "lb-period", 0, "load balancer tick period (0 disables it)")
	return cmd
}

func newBenchCmd() *cobra.Command {
	var workerCounts []int
	var messages int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare throughput across a set of worker pool sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, ctx := errgroup.WithContext(cmd.Context())
			results := make([]time.Duration, len(workerCounts))

			for i, n := range workerCounts {
				i, n := i, n
				g.Go(func() error {
					return benchOne(ctx, n, messages, &results[i])
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}
			for i, n := range workerCounts {
				fmt.Printf("workers=%d elapsed=%s\n", n, results[i])
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&workerCounts, "workers", []int{1, 2, 4, 8}, "worker counts to benchmark")
	cmd.Flags().IntVar(&messages, "messages", 200_000, "messages dispatched per run")
	return cmd
}

func benchOne(ctx context.Context, workers, messages int, out *time.Duration) error {
	cfg := bollywood.DefaultManagerConfig()
	cfg.WorkerCount = workers
	cfg.MaxWorkerCount = 2 * workers

	m := bollywood.NewManager(cfg)
	defer m.Close()

	const actorCount = 32
	pids := make([]*bollywood.Actor, actorCount)
	for i := range pids {
		pids[i] = m.Spawn(0)
	}

	start := time.Now()
	for i := 0; i < messages; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pids[i%actorCount].Async(func() {})
	}
	m.Run(true)
	*out = time.Since(start)
	return nil
}
