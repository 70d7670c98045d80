package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kudeepakh/farmqueue/internal/bootstrap"
	"github.com/spf13/cobra"
)

var (
	payloadJSON  string
	delaySeconds int
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [job name]",
	Short: "Enqueue a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var payload map[string]any
		if payloadJSON != "" {
			if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
				return fmt.Errorf("invalid --payload: %w", err)
			}
		}

		logger := log.New(os.Stderr, "farmqueue ", log.LstdFlags)
		blob, err := bootstrap.EncodeForEnqueue(bootstrap.DefaultRegistry(logger), args[0], payload)
		if err != nil {
			return err
		}

		q, closeQueue, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer closeQueue()

		id, err := q.Enqueue(ctx, blob, time.Duration(delaySeconds)*time.Second)
		if err != nil {
			return err
		}
		fmt.Printf("Enqueued: %s\n", id)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringVar(&payloadJSON, "payload", "", "Job payload as JSON")
	enqueueCmd.Flags().IntVar(&delaySeconds, "delay", 0, "Seconds before the job becomes available")
	rootCmd.AddCommand(enqueueCmd)
}
