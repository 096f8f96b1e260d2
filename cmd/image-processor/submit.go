package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aliskhannn/image-distributor/internal/model"
	"github.com/aliskhannn/image-distributor/internal/service/task"
)

var submitOp string

var submitCmd = &cobra.Command{
	Use:   "submit <file>...",
	Short: "Upload images and enqueue a task for each of them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		svc := task.NewService(b.store, b.tasks, b.notices, cfg.Storage.Buckets.Source, cfg.Producer.StrictOperations)

		tasks, err := svc.SubmitMany(cmd.Context(), args, model.Operation(submitOp))
		for _, t := range tasks {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Location, t.Operation)
		}

		return err
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitOp, "op", string(model.EdgeDetection), fmt.Sprintf("operation to apply %v", model.Operations()))
	rootCmd.AddCommand(submitCmd)
}
