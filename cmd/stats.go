package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var failedLimit int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counts by state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q, closeQueue, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer closeQueue()

		st, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("pending:    %d\n", st.Pending)
		fmt.Printf("processing: %d\n", st.Processing)
		fmt.Printf("failed:     %d\n", st.Failed)
		return nil
	},
}

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List terminally failed jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q, closeQueue, err := openQueue(ctx)
		if err != nil {
			return err
		}
		defer closeQueue()

		records, err := q.ListFailed(ctx, failedLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no failed jobs")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s  %s\n", r.ID, r.FailedAt.Format("2006-01-02 15:04:05"), r.Reason)
		}
		return nil
	},
}

func init() {
	failedCmd.Flags().IntVar(&failedLimit, "limit", 50, "Maximum records to list")
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(failedCmd)
}
