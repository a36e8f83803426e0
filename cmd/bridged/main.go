package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/wsbridge/internal/archive"
	"github.com/rickgao/wsbridge/internal/config"
	"github.com/rickgao/wsbridge/internal/connection"
	"github.com/rickgao/wsbridge/internal/database"
	"github.com/rickgao/wsbridge/internal/metrics"
	"github.com/rickgao/wsbridge/internal/router"
	"github.com/rickgao/wsbridge/internal/version"
	"github.com/rickgao/wsbridge/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/bridge.local.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting bridged",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"channel_url", cfg.Channel.URL,
		"archive_enabled", cfg.Archive.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics
	reg := metrics.NewRegistry()
	stateGauge := reg.NewGauge("bridge_connection_state", "Connection state (0=idle 1=connecting 2=open 3=reconnecting 4=closed)")
	latencyGauge := reg.NewGauge("bridge_heartbeat_latency_seconds", "Most recent heartbeat round trip")
	attemptsGauge := reg.NewGauge("bridge_reconnect_attempts", "Consecutive reconnect attempts")
	dispatchedCounter := reg.NewCounter("bridge_envelopes_dispatched_total", "Envelopes delivered to subscribers")
	droppedCounter := reg.NewCounter("bridge_envelopes_dropped_total", "Frames that failed to parse")
	reconnectCounter := reg.NewCounter("bridge_reconnects_total", "Successful reconnections")
	errorCounter := reg.NewCounter("bridge_connection_errors_total", "Transport and heartbeat errors")
	archivedCounter := reg.NewCounter("bridge_envelopes_archived_total", "Envelopes written to the database")

	// Optional archive pipeline
	var (
		archiveBuf *router.GrowableBuffer[wire.Envelope]
		archiver   *archive.Archiver
	)
	routerOpts := []router.Option{}
	if cfg.Archive.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("database connected")

		archiveBuf = router.NewGrowableBuffer[wire.Envelope](cfg.Archive.BufferSize)
		routerOpts = append(routerOpts, router.WithArchive(archiveBuf))

		archiver = archive.New(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
		}, archiveBuf, pool, logger)

		if err := archiver.Start(ctx); err != nil {
			logger.Error("failed to start archiver", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			archiver.Stop(stopCtx)
		}()
	}

	rt := router.New(logger, routerOpts...)

	// Connection manager
	mgr := connection.New(managerConfig(cfg.Channel), rt, connection.Callbacks{
		OnError: func(err error) {
			errorCounter.Inc()
			logger.Warn("connection error", "error", err)
		},
		OnReconnect: func(connID string) {
			reconnectCounter.Inc()
			logger.Info("reconnected", "connection_id", connID)
		},
		OnClose: func() {
			logger.Info("connection closed")
		},
		OnRetriesExhausted: func() {
			logger.Error("reconnect retries exhausted; waiting for manual reconnect")
		},
	}, logger)

	mgr.Connect()

	// Health and metrics server
	port := cfg.Metrics.Port
	path := cfg.Metrics.Path
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: createHealthHandler(mgr, rt, reg, path),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting health server", "port", port, "metrics_path", path)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Poll manager and router state into the gauges
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				snap := mgr.Snapshot()
				stateGauge.Set(float64(snap.State))
				latencyGauge.Set(snap.LastLatency.Seconds())
				attemptsGauge.Set(float64(snap.ReconnectAttempts))

				stats := rt.Stats()
				syncCounter(dispatchedCounter, stats.Dispatched)
				syncCounter(droppedCounter, stats.ParseErrors)

				if archiver != nil {
					syncCounter(archivedCounter, archiver.Stats().Inserts)
				}
			}
		}
	})

	logger.Info("bridged running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	mgr.Disconnect()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	if err := g.Wait(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("bridged stopped")
}

// managerConfig maps the channel section onto the manager's config.
func managerConfig(ch config.ChannelConfig) connection.Config {
	cfg := connection.DefaultConfig()
	cfg.URL = ch.URL
	cfg.AuthToken = ch.AuthToken
	cfg.Reconnect = ch.Reconnect
	if ch.MaxRetries != nil {
		cfg.MaxRetries = *ch.MaxRetries
	}
	if ch.BackoffFactor > 0 {
		cfg.BackoffFactor = ch.BackoffFactor
	}
	if ch.BaseDelay > 0 {
		cfg.BaseDelay = ch.BaseDelay
	}
	if ch.MaxDelay > 0 {
		cfg.MaxDelay = ch.MaxDelay
	}
	cfg.HeartbeatInterval = ch.HeartbeatInterval
	if ch.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = ch.HeartbeatTimeout
	}
	cfg.CircuitBreaker = ch.CircuitBreaker
	if ch.BreakerThreshold > 0 {
		cfg.BreakerThreshold = ch.BreakerThreshold
	}
	if ch.BreakerTimeout > 0 {
		cfg.BreakerTimeout = ch.BreakerTimeout
	}
	if ch.WriteTimeout > 0 {
		cfg.WriteTimeout = ch.WriteTimeout
	}
	if ch.BufferSize > 0 {
		cfg.BufferSize = ch.BufferSize
	}
	return cfg
}

// syncCounter raises a counter to match an absolute stat value.
func syncCounter(c *metrics.Counter, total int64) {
	if delta := total - c.Value(); delta > 0 {
		c.Add(delta)
	}
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(mgr *connection.Manager, rt *router.Router, reg *metrics.Registry, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := mgr.Snapshot()
		stats := rt.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		conn := map[string]interface{}{
			"state":              snap.State.String(),
			"circuit":            snap.Circuit.String(),
			"reconnect_attempts": snap.ReconnectAttempts,
			"connection_id":      snap.ConnectionID,
		}
		if snap.LastError != nil {
			conn["last_error"] = snap.LastError.Error()
		}
		if snap.LastLatency > 0 {
			conn["heartbeat_latency"] = snap.LastLatency.String()
		}
		health.Components["connection"] = conn

		health.Components["router"] = map[string]interface{}{
			"received":   stats.Received,
			"dispatched": stats.Dispatched,
			"dropped":    stats.ParseErrors,
		}

		switch snap.State {
		case connection.StateOpen:
			// healthy
		case connection.StateClosed:
			health.Status = "unhealthy"
		default:
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle(metricsPath, reg.Handler())

	return mux
}
