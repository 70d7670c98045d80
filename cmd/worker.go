package cmd

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kudeepakh/farmqueue/internal/bootstrap"
	"github.com/kudeepakh/farmqueue/internal/metrics"
	"github.com/kudeepakh/farmqueue/internal/worker"
	"github.com/spf13/cobra"
)

var (
	workerCount    int
	httpAddr       string
	maxJobs        int
	maxTimeSeconds int
	sleepSeconds   int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker utilities",
}

var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the polling worker loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := baseConfig()
		cfg.Workers = workerCount
		cfg.HTTPAddr = httpAddr
		cfg.Worker = worker.Config{
			MaxJobs:       maxJobs,
			MaxTime:       time.Duration(maxTimeSeconds) * time.Second,
			SleepInterval: time.Duration(sleepSeconds) * time.Second,
		}
		return bootstrap.Run(cfg)
	},
}

var workerNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Run at most one job and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q, closeQueue, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer closeQueue()

		logger := log.New(os.Stderr, "farmqueue ", log.LstdFlags)
		w := worker.New(1, q, bootstrap.DefaultRegistry(logger), metrics.New(), logger, worker.Config{})

		found, err := w.RunNext(ctx)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("no jobs available")
			return nil
		}
		fmt.Println("processed one job")
		return nil
	},
}

func init() {
	workerStartCmd.Flags().IntVar(&workerCount, "workers", 1, "Number of worker loops")
	workerStartCmd.Flags().StringVar(&httpAddr, "http", "", "Address for /health, /metrics and /enqueue (empty disables)")
	workerStartCmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "Stop after this many jobs (0 = unlimited)")
	workerStartCmd.Flags().IntVar(&maxTimeSeconds, "max-time", 0, "Stop after this many seconds (0 = unlimited)")
	workerStartCmd.Flags().IntVar(&sleepSeconds, "sleep", 3, "Seconds to sleep when the queue is empty")

	workerCmd.AddCommand(workerStartCmd)
	workerCmd.AddCommand(workerNextCmd)
	rootCmd.AddCommand(workerCmd)
}
