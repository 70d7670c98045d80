package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kudeepakh/farmqueue/internal/bootstrap"
	"github.com/kudeepakh/farmqueue/internal/store"
	"github.com/spf13/cobra"
)

var (
	driver            string
	dsn               string
	visibilitySeconds int
)

var rootCmd = &cobra.Command{
	Use:   "farmqueue",
	Short: "Durable background job queue and worker.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driver, "driver", "sqlite", "Queue store driver (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Store DSN (default $DATABASE_URL for postgres, $HOME/.farmqueue/queue.db for sqlite)")
	rootCmd.PersistentFlags().IntVar(&visibilitySeconds, "visibility", 300, "Seconds a claimed record stays invisible")
}

func baseConfig() bootstrap.Config {
	d := dsn
	if d == "" && driver == "sqlite" {
		home, _ := os.UserHomeDir()
		dir := filepath.Join(home, ".farmqueue")
		_ = os.MkdirAll(dir, 0o755)
		d = filepath.Join(dir, "queue.db")
	}
	return bootstrap.Config{
		Driver:            driver,
		DSN:               d,
		VisibilityTimeout: time.Duration(visibilitySeconds) * time.Second,
	}
}

func openQueue(ctx context.Context) (store.Queue, func(), error) {
	return bootstrap.OpenQueue(ctx, baseConfig())
}
