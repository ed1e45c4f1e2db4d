// Command server runs the CSV question answering HTTP service.
//
//	export OPENAI_API_KEY=...
//	go run ./cmd/server -config configs/config.example.yaml
//
// Every setting can also be supplied as VIZAGENT_* environment variables,
// for example VIZAGENT_MODEL_PROVIDER=ollama.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Protocol-Lattice/go-dataviz-agent/src/adk"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/config"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/helpers"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/logging"
	"github.com/Protocol-Lattice/go-dataviz-agent/src/server"
)

const shutdownGrace = 15 * time.Second

var (
	flagConfig  = flag.String("config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	flagAddr    = flag.String("addr", "", "Override the listen address")
	flagOrigins = flag.String("origins", "", "Comma separated CORS origins, replacing the configured list")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return err
	}
	if *flagAddr != "" {
		cfg.Server.Addr = *flagAddr
	}
	if origins := helpers.ParseCSVList(*flagOrigins); len(origins) > 0 {
		cfg.Server.AllowedOrigins = origins
	}
	logger, err := logging.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kit, err := adk.New(ctx, *cfg, adk.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := kit.Close(); err != nil {
			logger.WithError(err).Warn("close backends", nil)
		}
	}()

	opts := server.Options{
		Service:        kit.Service(),
		Logger:         logger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		SampleSize:     cfg.Dataset.SampleSize,
		StaticDir:      cfg.Server.StaticDir,
	}
	if cfg.Metrics.Enabled {
		opts.MetricsPath = cfg.Metrics.Path
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]any{
			"addr":     cfg.Server.Addr,
			"provider": cfg.Model.Provider,
			"model":    cfg.Model.Name,
		})
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
