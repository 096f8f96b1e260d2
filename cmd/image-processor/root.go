package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/image-distributor/internal/config"
)

var (
	// cfg is loaded once by the root command before any subcommand runs.
	cfg *config.Config
	// configPath is the YAML configuration file.
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "image-processor",
	Short: "Distributed image processing over an object store and message queues",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if errors.Is(err, config.ErrMissingCredentials) {
			zlog.Logger.Fatal().Err(err).Msg("refusing to start without credentials")
		}
		if err != nil {
			return err
		}

		return cfg.Log.Apply()
	},
	SilenceUsage: true,
}

// Execute runs the root command with a context cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config/config.yml", "path to the YAML configuration file")
}
