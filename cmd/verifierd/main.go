// Package main provides the verification daemon entry point for medguardian.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/adithyakrish0/medguardian/internal/config"
	dbgorm "github.com/adithyakrish0/medguardian/internal/db/gorm"
	"github.com/adithyakrish0/medguardian/internal/notifier"
	"github.com/adithyakrish0/medguardian/internal/refstore"
	"github.com/adithyakrish0/medguardian/internal/session"
	"github.com/adithyakrish0/medguardian/internal/signals"
	"github.com/adithyakrish0/medguardian/internal/signals/cvclient"
	"github.com/adithyakrish0/medguardian/internal/stability"
	"github.com/adithyakrish0/medguardian/internal/worker"
	"github.com/adithyakrish0/medguardian/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	noAudit := flag.Bool("no-audit", false, "Disable the audit database")
	flag.Parse()

	// Setup logging
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down verification daemon")
		cancel()
	}()

	// Medication reference registry with hot reload
	registry, err := refstore.Load(cfg.RegistryPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RegistryPath).Msg("Failed to load medication registry")
	}
	log.Info().Int("medications", registry.Len()).Str("path", cfg.RegistryPath).Msg("Medication registry loaded")

	watcher, err := refstore.NewWatcher(registry)
	if err != nil {
		log.Warn().Err(err).Msg("Registry watcher unavailable, hot reload disabled")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start registry watcher, hot reload disabled")
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	// Audit store (optional)
	var audit *dbgorm.AuditStore
	if !*noAudit {
		store, err := dbgorm.NewStore(dbgorm.Config{
			Path:     cfg.DBPath,
			MaxConns: cfg.MaxConns,
			LogLevel: logger.Silent,
		})
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to initialize audit database")
		}
		defer store.Close()
		audit = dbgorm.NewAuditStore(store)
	}

	// CV sidecar collaborators
	cv := cvclient.New(cfg.CVServiceURL, cfg.CVTimeout)
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := cv.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("url", cfg.CVServiceURL).Msg("CV sidecar not reachable yet, frames will fail until it is")
	}
	pingCancel()

	pipeline := signals.NewPipeline(cv, cv, cv, cv, cv, registry)

	// Event sinks: log always, SSE always, MQTT and audit when configured
	broadcaster := sse.NewBroadcaster()
	sinks := []session.Emitter{
		notifier.NewLogSink(),
		sse.NewEventEmitter(broadcaster),
	}
	if audit != nil {
		sinks = append(sinks, audit)
	}
	if cfg.MQTTBroker != "" {
		mqttSink, err := notifier.NewMQTTSink(cfg)
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTTBroker).Msg("MQTT notifier unavailable, continuing without it")
		} else {
			defer mqttSink.Close()
			sinks = append(sinks, mqttSink)
		}
	}

	// Decision engine
	tracker := stability.NewTracker(stability.Options{
		Capacity:          cfg.StabilityCapacity,
		Majority:          cfg.StabilityMajority,
		PositiveThreshold: cfg.PositiveThreshold,
	})
	manager := session.NewManager(session.Config{
		Window:           cfg.SessionWindow,
		FeedbackInterval: cfg.FeedbackInterval,
		AcceptThreshold:  cfg.AcceptThreshold,
		AcceptStreak:     cfg.AcceptStreak,
		FailedRetention:  cfg.FailedRetention,
		CleanupInterval:  cfg.CleanupInterval,
	}, pipeline, tracker, notifier.NewMulti(sinks...))
	defer manager.Shutdown()

	// HTTP API
	svc := worker.NewService(Version, cfg, manager, registry, audit, broadcaster)
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := svc.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown error")
		}
	}()

	log.Info().Str("version", Version).Int("port", cfg.WorkerPort).Msg("Starting verification daemon")
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("HTTP server error")
	}
}
