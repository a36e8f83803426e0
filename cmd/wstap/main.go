// wstap connects to a bridge endpoint and streams parsed envelopes to
// the console. Useful for eyeballing what a channel is carrying.
//
// Usage: go run ./cmd/wstap --url ws://localhost:8080/channel
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/wsbridge/internal/config"
	"github.com/rickgao/wsbridge/internal/connection"
	"github.com/rickgao/wsbridge/internal/router"
	"github.com/rickgao/wsbridge/internal/wire"
)

func main() {
	url := flag.String("url", "", "WebSocket URL (overrides config)")
	configPath := flag.String("config", "", "optional path to config file")
	kind := flag.String("kind", "", "only print envelopes of this kind")
	topic := flag.String("topic", "", "only print envelopes on this topic")
	verbose := flag.Bool("verbose", false, "print full envelope JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	connCfg := connection.DefaultConfig()
	if *configPath != "" {
		cfg, err := config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		connCfg.URL = cfg.Channel.URL
		connCfg.AuthToken = cfg.Channel.AuthToken
	}
	if *url != "" {
		connCfg.URL = *url
	}
	if connCfg.URL == "" {
		logger.Error("no URL: pass --url or --config")
		os.Exit(1)
	}

	rt := router.New(logger)

	mgr := connection.New(connCfg, rt, connection.Callbacks{
		OnError: func(err error) {
			logger.Warn("connection error", "error", err)
		},
		OnReconnect: func(connID string) {
			logger.Info("reconnected", "connection_id", connID)
		},
		OnRetriesExhausted: func() {
			logger.Error("retries exhausted, giving up")
			os.Exit(1)
		},
	}, logger)

	match := func(env wire.Envelope) bool {
		if *kind != "" && env.Kind != *kind {
			return false
		}
		if *topic != "" && env.Topic != *topic {
			return false
		}
		return true
	}

	unsubscribe := mgr.Subscribe(match, func(env wire.Envelope) {
		printEnvelope(env, *verbose)
	})
	defer unsubscribe()

	logger.Info("connecting", "url", connCfg.URL)
	mgr.Connect()

	// Periodic status line on stderr
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			snap := mgr.Snapshot()
			stats := rt.Stats()
			logger.Info("status",
				"state", snap.State.String(),
				"received", stats.Received,
				"dispatched", stats.Dispatched,
				"latency", snap.LastLatency,
			)
		}
	}()

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	mgr.Disconnect()
}

func printEnvelope(env wire.Envelope, verbose bool) {
	if verbose {
		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		fmt.Println(string(data))
		return
	}

	ts := time.UnixMilli(env.Timestamp).Format("15:04:05.000")
	payload := string(env.Payload)
	if len(payload) > 80 {
		payload = payload[:77] + "..."
	}
	fmt.Printf("%s  %-12s %-16s %s\n", ts, env.Kind, env.Topic, payload)
}
