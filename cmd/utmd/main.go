// Package main implements utmd, the UTM planner service. It wires the
// geofence cost model, the 4D planner, the conflict engine, and the mission
// orchestrator behind an HTTP API with a WebSocket event stream.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/skyward/utm/internal/api"
	"github.com/skyward/utm/internal/config"
	"github.com/skyward/utm/internal/conflict"
	"github.com/skyward/utm/internal/events"
	"github.com/skyward/utm/internal/geofence"
	"github.com/skyward/utm/internal/orchestrator"
	"github.com/skyward/utm/internal/planner"
	"github.com/skyward/utm/internal/realtime"
	"github.com/skyward/utm/internal/sim"
	"github.com/skyward/utm/pkg/logging"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP server address")
	logLevel := flag.String("log-level", "info", "log level (debug|info|warn|error)")
	logOutput := flag.String("log-output", "stdout", "log output (stdout or file path)")
	simFleet := flag.Int("sim-fleet", 0, "run an in-process virtual fleet of N drones")
	simSeed := flag.Int64("sim-seed", 42, "virtual fleet random seed")
	natsURL := flag.String("nats", "", "NATS URL for the event bridge (empty disables)")
	flag.Parse()

	logger := logging.New(logging.Options{Level: *logLevel, Output: *logOutput})
	log := logging.Component(logger, "utmd")

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("configuration invalid")
	}
	log.WithFields(map[string]any{
		"grid_resolution": cfg.GridResolution,
		"no_fly_zones":    len(cfg.NoFlyZones),
		"sensitive_areas": len(cfg.SensitiveAreas),
	}).Info("configuration loaded")

	bus := events.NewBus()
	defer bus.Close()

	fence := geofence.NewEngine(cfg)
	pl := planner.New(cfg, fence, logging.Component(logger, "planner"))
	detector := conflict.NewDetector(cfg)
	resolver := conflict.NewResolver(cfg, detector)
	orch := orchestrator.New(cfg, fence, pl, detector, resolver, bus,
		logging.Component(logger, "orchestrator"))

	if *natsURL != "" {
		bridgeCfg := realtime.DefaultBridgeConfig()
		bridgeCfg.NATSURL = *natsURL
		bridge, err := realtime.NewBridge(bridgeCfg, bus, logging.Component(logger, "nats"))
		if err != nil {
			log.WithError(err).Warn("NATS bridge unavailable, continuing without it")
		} else {
			defer bridge.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.StartMonitor(ctx)

	if *simFleet > 0 {
		fleet := sim.NewFleet(*simFleet, cfg, orch, logging.Component(logger, "fleet"), *simSeed)
		if err := fleet.Register(); err != nil {
			log.WithError(err).Fatal("fleet registration failed")
		}
		fleet.WatchAssignments(bus)
		go fleet.Run(ctx)
	}

	serverCfg := api.DefaultConfig()
	serverCfg.Addr = *addr
	hub := api.NewWebSocketHub(bus, logging.Component(logger, "websocket"))
	handlers := api.NewHandlers(orch, fence, logging.Component(logger, "api"))
	server := api.NewServer(serverCfg, handlers, hub, logging.Component(logger, "http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
}
