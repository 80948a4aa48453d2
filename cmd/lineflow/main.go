// Package main implements the entry point for the lineflow service.
// Lineflow ingests manufacturing telemetry envelopes from NATS, decodes
// the per-enterprise MQTT topic feeds, and writes reference entities,
// state events, lifecycle completions, and windowed metric buckets to a
// local store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/lineflow/config"
	"github.com/c360/lineflow/decode"
	"github.com/c360/lineflow/errors"
	"github.com/c360/lineflow/ingest"
	"github.com/c360/lineflow/metric"
	"github.com/c360/lineflow/natsclient"
	"github.com/c360/lineflow/pipeline"
	"github.com/c360/lineflow/pkg/retry"
	"github.com/c360/lineflow/registry"
	"github.com/c360/lineflow/sink"
	"github.com/c360/lineflow/sink/sqlite"
	"github.com/c360/lineflow/track"
	"github.com/c360/lineflow/window"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "lineflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file (defaults apply when omitted)")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	if *validateOnly {
		logger.Info("configuration is valid")
		return nil
	}

	metricsRegistry := metric.NewRegistry()
	metrics := metricsRegistry.CoreMetrics()

	table, err := buildDecoders(cfg, logger)
	if err != nil {
		return err
	}

	snk, err := buildSink(cfg, logger, metrics)
	if err != nil {
		return err
	}

	dispatcher := pipeline.New(pipeline.Options{
		Table:    table,
		Registry: registry.New(logger.With("component", "registry")),
		Tracker: track.New(track.Thresholds{
			Complete:   cfg.Lifecycle.CompleteThreshold,
			InProgress: cfg.Lifecycle.InProgressThreshold,
		}, logger.With("component", "track")),
		Windows:       window.New(cfg.Window.Size.Std(), cfg.Window.Grace.Std(), logger.With("component", "window")),
		Sink:          snk,
		Metrics:       metrics,
		Logger:        logger.With("component", "dispatcher"),
		QueueSize:     cfg.Ingest.QueueSize,
		SealInterval:  cfg.Window.Grace.Std() / 2,
		FlushInterval: cfg.Sink.FlushInterval.Std(),
		BatchSize:     cfg.Sink.BatchSize,
	})
	if err := dispatcher.Initialize(); err != nil {
		return err
	}

	natsClient, err := buildNATSClient(cfg, logger, metrics)
	if err != nil {
		return err
	}

	ctx := context.Background()
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = natsClient.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.NATS.DrainTimeout.Std())
		defer cancel()
		if err := natsClient.Close(closeCtx); err != nil {
			logger.Error("NATS close failed", "error", err)
		}
	}()

	input := ingest.New(ingest.Options{
		Subjects:   cfg.Ingest.Subjects,
		Client:     natsClient,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger.With("component", "ingest"),
	})
	if err := input.Initialize(); err != nil {
		return err
	}

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	if err := input.Start(ctx); err != nil {
		_ = dispatcher.Stop(10 * time.Second)
		return err
	}

	var metricServer *metric.Server
	if cfg.Metrics.Enabled {
		metricServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server listening", "address", metricServer.Address())
	}

	logger.Info("lineflow started",
		"version", Version,
		"enterprises", cfg.Enabled(),
		"subjects", cfg.Ingest.Subjects,
		"sink", cfg.Sink.Driver)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("shutting down", "signal", received.String())

	if err := input.Stop(5 * time.Second); err != nil {
		logger.Error("ingest stop failed", "error", err)
	}
	// The dispatcher drains its queue, closes in-flight runs and open
	// windows, and flushes the sink before returning.
	if err := dispatcher.Stop(30 * time.Second); err != nil {
		logger.Error("dispatcher stop failed", "error", err)
	}
	if err := snk.Close(); err != nil {
		logger.Error("sink close failed", "error", err)
	}
	if metricServer != nil {
		if err := metricServer.Stop(); err != nil {
			logger.Error("metrics server stop failed", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// loadConfig loads the YAML config, or the built-in defaults when no
// path was given.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildDecoders constructs a decoder for each enabled enterprise.
func buildDecoders(cfg *config.Config, logger *slog.Logger) (*decode.Table, error) {
	decodeLogger := logger.With("component", "decode")

	var decoders []decode.Decoder
	for _, id := range cfg.Enabled() {
		ent := cfg.Enterprises[id]
		switch id {
		case config.EnterpriseGlass:
			decoders = append(decoders, decode.NewGlass(decode.GlassConfig{
				Enterprise: id, Prefix: ent.Prefix, Ignore: ent.IgnorePrefixes,
			}, decodeLogger))
		case config.EnterpriseBeverage:
			decoders = append(decoders, decode.NewBeverage(decode.BeverageConfig{
				Enterprise: id, Prefix: ent.Prefix, Ignore: ent.IgnorePrefixes,
			}, decodeLogger))
		case config.EnterpriseBiotech:
			decoders = append(decoders, decode.NewBiotech(decode.BiotechConfig{
				Enterprise: id, Prefix: ent.Prefix, Ignore: ent.IgnorePrefixes,
			}, decodeLogger))
		}
	}
	return decode.NewTable(decoders...)
}

// buildSink constructs the configured fact store.
func buildSink(cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (sink.Sink, error) {
	switch cfg.Sink.Driver {
	case config.SinkMemory:
		return sink.NewMemory(), nil
	case config.SinkSQLite:
		return sqlite.New(cfg.Sink.Path, logger.With("component", "sink"),
			sqlite.WithRetry(retry.Config{
				MaxAttempts:  cfg.Sink.Retry.MaxAttempts,
				InitialDelay: cfg.Sink.Retry.InitialDelay.Std(),
				MaxDelay:     cfg.Sink.Retry.MaxDelay.Std(),
				Multiplier:   cfg.Sink.Retry.Multiplier,
			}),
			sqlite.WithMetrics(metrics))
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "main", "buildSink",
			"unsupported sink driver "+cfg.Sink.Driver)
	}
}

// buildNATSClient constructs the broker client from the NATS config.
func buildNATSClient(cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithMetrics(metrics),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait.Std()),
		natsclient.WithDrainTimeout(cfg.NATS.DrainTimeout.Std()),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithUserInfo(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}
	if cfg.NATS.TLS.Enabled {
		opts = append(opts, natsclient.WithTLS(cfg.NATS.TLS.CertFile, cfg.NATS.TLS.KeyFile, cfg.NATS.TLS.CAFile))
	}
	return natsclient.NewClient(cfg.NATS.URLs, opts...)
}
