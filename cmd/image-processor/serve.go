package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	taskhandler "github.com/aliskhannn/image-distributor/internal/api/handlers/task"
	"github.com/aliskhannn/image-distributor/internal/api/router"
	"github.com/aliskhannn/image-distributor/internal/api/server"
	"github.com/aliskhannn/image-distributor/internal/service/task"
)

var serveWithCoordinator bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API for submitting images and polling results",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		b, err := connect(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		svc := task.NewService(b.store, b.tasks, b.notices, cfg.Storage.Buckets.Source, cfg.Producer.StrictOperations)

		h := taskhandler.NewHandler(svc, nil)
		if b.ledger != nil {
			h = taskhandler.NewHandler(svc, b.ledger)
		}

		s := server.New(cfg.Server, router.Setup(h))

		var wg sync.WaitGroup
		if serveWithCoordinator {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := runCoordinator(ctx, b, false); err != nil {
					zlog.Logger.Error().Err(err).Msg("coordinator stopped with error")
				}
			}()
		}

		go func() {
			zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("starting server")
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zlog.Logger.Fatal().Err(err).Msg("failed to start server")
			}
		}()

		// Block until context is canceled (SIGINT/SIGTERM).
		<-ctx.Done()
		zlog.Logger.Info().Msg("context done")

		wg.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		zlog.Logger.Info().Msg("shutting down server")
		if err := s.Shutdown(shutdownCtx); err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWithCoordinator, "coordinator", false, "also run the coordinator and worker group in this process")
	rootCmd.AddCommand(serveCmd)
}
