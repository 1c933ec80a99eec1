package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/huebridged/huebridged/internal/announce"
	"github.com/huebridged/huebridged/internal/api"
	"github.com/huebridged/huebridged/internal/config"
	"github.com/huebridged/huebridged/internal/events"
	"github.com/huebridged/huebridged/internal/hass"
	"github.com/huebridged/huebridged/internal/light"
	"github.com/huebridged/huebridged/internal/scheduler"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set up Viper for configuration
	v := viper.New()
	v.SetEnvPrefix("HUEBRIDGED")
	v.AutomaticEnv()

	// Set up command line flags
	pflag.String("log-level", "info", "Log level (debug, info, warn, error)")
	pflag.String("log-format", "text", "Log format (text, json)")
	pflag.String("config", "", "Path to config file")
	pflag.String("hass-url", "", "Home Assistant websocket URL")
	pflag.String("hass-token", "", "Home Assistant access token")
	pflag.Parse()

	// Bind flags to Viper - this ensures flags take precedence
	v.BindPFlag("logging.level", pflag.Lookup("log-level"))
	v.BindPFlag("logging.format", pflag.Lookup("log-format"))
	v.BindPFlag("homeassistant.url", pflag.Lookup("hass-url"))
	v.BindPFlag("homeassistant.token", pflag.Lookup("hass-token"))

	// Load configuration
	cfg, err := config.Load("huebridged.yaml", v.GetString("config"))
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if v.GetString("homeassistant.url") != "" {
		cfg.HomeAssistant.URL = v.GetString("homeassistant.url")
	}
	if v.GetString("homeassistant.token") != "" {
		cfg.HomeAssistant.Token = v.GetString("homeassistant.token")
	}

	// Set up logging with configured level - Viper will use flag value if set
	level := getLogLevel(v.GetString("logging.level"))
	format := v.GetString("logging.format")
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	logger.Info("Starting huebridged",
		"version", version,
		"commit", commit,
		"buildDate", buildDate,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := config.OpenStore(logger, cfg.Store.Path, cfg.Lights.DefaultThrottleMS)
	if err != nil {
		logger.Error("failed to open lights store", "error", err)
		os.Exit(1)
	}
	if err := store.Watch(ctx); err != nil {
		logger.Warn("lights store watch unavailable", "error", err)
	}

	backend := hass.NewClient(logger, cfg.HomeAssistant.URL, cfg.HomeAssistant.Token)
	if err := backend.Connect(ctx); err != nil {
		logger.Error("failed to connect to home assistant", "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	bus := events.NewBus()
	bus.Subscribe(func(e events.Event) {
		logger.Debug("light event", "type", string(e.Type), "data", string(e.Data))
	})

	sched := scheduler.New(logger)
	sched.Start(ctx)
	defer sched.Stop()

	registry := light.NewRegistry(logger, backend, store, sched, bus,
		time.Duration(cfg.Lights.RefreshIntervalMS)*time.Millisecond)

	// Warm the registry with every light the store already knows about.
	for _, entityID := range store.EntityIDs() {
		if _, err := registry.Get(ctx, entityID); err != nil {
			logger.Warn("failed to register stored light", "entity_id", entityID, "error", err)
		}
	}

	srv := api.NewServer(logger, api.Config{
		ListenAddress:      cfg.API.ListenAddress,
		RateLimitPerMinute: cfg.API.RateLimitPerMinute,
		Version:            version,
		Commit:             commit,
		Date:               buildDate,
	}, registry)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	if port := listenPort(cfg.API.ListenAddress); port > 0 {
		ann, err := announce.Start(logger, "huebridged", bridgeID(), port, version)
		if err != nil {
			logger.Warn("mdns announcement unavailable", "error", err)
		} else {
			defer ann.Shutdown()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-backend.Done():
		logger.Error("home assistant connection lost")
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping server", "error", err)
	}
}

// listenPort extracts the port from a listen address, 0 when unparseable.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

// bridgeID derives a Hue-style bridge id from the primary interface MAC,
// falling back to a fixed id when no interface is usable.
func bridgeID() string {
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 6 {
				continue
			}
			mac := iface.HardwareAddr
			return strconv.FormatUint(
				uint64(mac[0])<<56|uint64(mac[1])<<48|uint64(mac[2])<<40|
					0xFFFE<<24|
					uint64(mac[3])<<16|uint64(mac[4])<<8|uint64(mac[5]), 16)
		}
	}
	return "000000fffe000000"
}

func getLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
