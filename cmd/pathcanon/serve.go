package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pathcanon/pathcanon/internal/config"
	"github.com/pathcanon/pathcanon/internal/logging"
	"github.com/pathcanon/pathcanon/internal/observability"
	"github.com/pathcanon/pathcanon/internal/server"
)

const pruneInterval = time.Minute

func newServeCmd() *cobra.Command {
	var configPath string
	var listenOverride string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve resolve and realpath over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if listenOverride != "" {
				cfg.Server.Listen = listenOverride
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, cmd)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML or TOML)")
	cmd.Flags().StringVar(&listenOverride, "listen", "", "Override server.listen")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	log, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	srv.SetLogger(log)

	if cfg.Logging.TraceLog != "" {
		traces, closer, err := logging.OpenTraceLog(cfg.ResolvePath(cfg.Logging.TraceLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		srv.SetTraceLogger(traces)
	}

	metricsSrv := startMetricsServer(cfg, srv, log)
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpSrv.ListenAndServe()
	}()
	log.WithFields(logrus.Fields{"listen": cfg.Server.Listen, "grammar": cfg.Grammar}).Info("serving")

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-signalCtx.Done():
			break loop
		case err := <-serverErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			break loop
		case <-ticker.C:
			if n := srv.Prune(); n > 0 {
				log.WithField("buckets", n).Debug("pruned idle rate limit buckets")
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func startMetricsServer(cfg *config.Config, srv *server.Server, log logrus.FieldLogger) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	srv.SetMetrics(metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	metricsSrv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return metricsSrv
}
