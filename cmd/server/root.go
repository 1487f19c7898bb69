package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openrts/masterserver/internal/app"
	"github.com/openrts/masterserver/internal/config"
	applog "github.com/openrts/masterserver/internal/log"
)

var (
	configPath string
	portFlag   int
	logLevel   string
)

func newRootCmd() *cobra.Command {
	var (
		cfg    config.Config
		logger *zerolog.Logger
		reload <-chan config.Config
	)

	cmd := &cobra.Command{
		Use:           "masterserver",
		Short:         "Lobby server for the game's master protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = applog.New(logLevel)

			loaded, v, path, err := config.Load(logger, configPath)
			if err != nil {
				return err
			}
			if portFlag != 0 {
				loaded.Port = portFlag
			}
			cfg = loaded
			reload = config.Watch(logger, v)

			logger.Info().Str("path", path).Msg("configuration loaded")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(cfg, reload, logger)
			if err != nil {
				return err
			}

			logger.Info().Int("port", cfg.Port).Msg("starting masterserver")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config.yaml)")
	cmd.PersistentFlags().IntVar(&portFlag, "port", 0, "override the configured listen port")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	cmd.SetContext(context.Background())

	return cmd
}
