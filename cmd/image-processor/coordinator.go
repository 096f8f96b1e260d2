package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/cluster"
	"github.com/aliskhannn/image-distributor/internal/coordinator"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Claim tasks and process them on the worker group until the task queue is empty",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		return runCoordinator(cmd.Context(), b, cfg.Coordinator.ExitWhenIdle)
	},
}

func init() {
	rootCmd.AddCommand(coordinatorCmd)
}

// runCoordinator starts the worker group and drives it until the
// coordinator shuts it down.
func runCoordinator(ctx context.Context, b *backends, exitWhenIdle bool) error {
	degraded, err := cluster.ParseDegraded(cfg.Cluster.Degraded)
	if err != nil {
		return err
	}
	policy, err := coordinator.ParsePolicy(cfg.Coordinator.FailurePolicy)
	if err != nil {
		return err
	}

	group, err := cluster.New(cluster.Options{
		Size:         cfg.Cluster.Size,
		RoundTimeout: cfg.Cluster.RoundTimeout,
		Degraded:     degraded,
	})
	if err != nil {
		return err
	}
	group.Start(ctx)

	deps := coordinator.Deps{
		Root:       group.Root(),
		Store:      b.store,
		Tasks:      b.tasks,
		Notices:    b.notices,
		DeadLetter: b.deadLetter,
	}
	if b.ledger != nil {
		deps.Ledger = b.ledger
	}

	c := coordinator.New(deps, coordinator.Options{
		Wait:            cfg.Coordinator.Wait,
		ExitWhenIdle:    exitWhenIdle,
		Policy:          policy,
		MaxRedeliveries: cfg.Coordinator.MaxRedeliveries,
		RejectUnknown:   cfg.Coordinator.RejectUnknown,
		ResultPrefix:    cfg.Coordinator.ResultPrefix,
		ResultContainer: cfg.Storage.Buckets.Result,
		Overlay:         cfg.Debug.Overlay,
	})

	go func() {
		for e := range c.Events() {
			zlog.Logger.Debug().Str("state", e.State.String()).Str("task_id", e.Task.ID.String()).Msg("coordinator state")
		}
	}()

	zlog.Logger.Info().
		Int("participants", cfg.Cluster.Size).
		Dur("round_timeout", cfg.Cluster.RoundTimeout).
		Str("degraded", degraded.String()).
		Str("failure_policy", policy.String()).
		Msg("coordinator started")

	runErr := c.Run(ctx)
	if err := group.Close(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	zlog.Logger.Info().Msg("worker group stopped")
	return runErr
}
