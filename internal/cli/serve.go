package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/topiccache/internal/config"
	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/scheduler"
	"github.com/watzon/topiccache/internal/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the topic index server",
	Long: `Start the topiccache server.

The server will:
  - Accept participant connections on /api/realtime
  - Serve counts and snapshots under /api
  - Dump both indexes to the log on the diagnostics schedule
  - Reload the log level when the config file changes`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Watch(config.LoadOptions{ConfigFile: cfgFile}, func(next *config.Config) {
		applyLogLevel(next.Logging.Level)
		log.Info().Str("level", next.Logging.Level).Msg("Log level updated")
	})
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		log.Debug().Msg("No config file found, using defaults and environment")
	case err != nil:
		return err
	default:
		if path, pathErr := config.ConfigFilePath(cfgFile); pathErr == nil {
			log.Info().Str("file", path).Msg("Watching config file")
		}
	}

	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	setupLogging(os.Stderr, cfg.Logging)

	listener := discovery.NewListener(
		cfg.Discovery.NamespacePrefixes,
		log.With().Str("component", "discovery").Logger(),
	)

	sched, err := scheduler.New(
		cfg.Discovery.DiagnosticsSchedule,
		listener,
		log.With().Str("component", "scheduler").Logger(),
	)
	if err != nil {
		return err
	}

	srv := server.New(cfg, listener,
		server.WithVersion(version),
		server.WithLogger(log.With().Str("component", "server").Logger()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logServerInfo(cfg)
	sched.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		sched.Stop(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func logServerInfo(cfg *config.Config) {
	log.Info().
		Str("url", "http://"+cfg.Server.Address()).
		Strs("namespace_prefixes", cfg.Discovery.NamespacePrefixes).
		Msg("Server started")

	if cfg.Realtime.Enabled {
		log.Info().
			Str("ws", "ws://"+cfg.Server.Address()+"/api/realtime").
			Msg("Realtime WebSocket endpoint")
	}

	if cfg.Metrics.Enabled {
		log.Info().
			Str("metrics", "http://"+cfg.Server.Address()+"/metrics").
			Msg("Prometheus metrics")
	}
}
