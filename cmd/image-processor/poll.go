package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aliskhannn/image-distributor/internal/service/task"
)

var (
	pollWatch bool
	pollWait  time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Print completion notices of processed images",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		svc := task.NewService(b.store, b.tasks, b.notices, cfg.Storage.Buckets.Source, cfg.Producer.StrictOperations)
		out := cmd.OutOrStdout()

		if pollWatch {
			for r := range svc.Watch(cmd.Context(), pollWait) {
				fmt.Fprintln(out, r)
			}
			return nil
		}

		results, err := svc.PollResults(cmd.Context(), pollWait)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Fprintln(out, r)
		}

		return nil
	},
}

func init() {
	pollCmd.Flags().BoolVar(&pollWatch, "watch", false, "keep polling until interrupted")
	pollCmd.Flags().DurationVar(&pollWait, "wait", 10*time.Second, "long-poll wait per receive")
	rootCmd.AddCommand(pollCmd)
}
