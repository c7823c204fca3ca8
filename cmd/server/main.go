package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talkwire/talkwire-server/internal/app"
	"github.com/talkwire/talkwire-server/internal/config"
	"github.com/talkwire/talkwire-server/internal/log"
)

func main() {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "talkwire-server",
		Short:         "Realtime chat, presence and call signaling server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootstrap := log.New("info")
			cfg, source, err := config.Load(bootstrap, configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Flags win over config file and environment.
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", source).Str("addr", cfg.Addr).Msg("starting talkwire server")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	serve.Flags().StringVar(&configPath, "config", "", "path to config file")
	serve.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	serve.Flags().StringVar(&logLevel, "log-level", "", "log level (trace..error)")

	root.AddCommand(serve)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
