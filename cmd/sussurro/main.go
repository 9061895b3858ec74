// Command sussurro is the push-to-dictate daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sussurro/sussurro/internal/app"
	"github.com/sussurro/sussurro/internal/config"
	"github.com/sussurro/sussurro/internal/health"
	"github.com/sussurro/sussurro/internal/observe"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sussurro: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sussurro: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("sussurro starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	// Must come before anything touches observe.DefaultMetrics so the
	// instruments bind to the real meter provider.
	stopTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "sussurro",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.WithLogger(logger))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		if next.LogLevel != old.LogLevel {
			level.Set(slogLevel(next.LogLevel))
			slog.Info("log level changed", "level", next.LogLevel)
		}
		application.Reload(next)
	})
	if err != nil {
		slog.Warn("config watcher unavailable, edits need a restart", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Observability server (optional) ───────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		srv := newObservabilityServer(cfg.Server.ListenAddr, application)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("observability server error", "err", err)
			}
		}()
		defer func() {
			srvCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(srvCtx); err != nil {
				slog.Warn("observability server shutdown error", "err", err)
			}
		}()
		slog.Info("observability server listening", "addr", cfg.Server.ListenAddr)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, application)

	slog.Info("daemon ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Observability server ──────────────────────────────────────────────────────

// newObservabilityServer serves Prometheus metrics plus the liveness and
// readiness probes, instrumented with the shared HTTP middleware.
func newObservabilityServer(addr string, application *app.App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{health.EngineCheck(application.Router())}
	if store := application.History(); store != nil {
		checkers = append(checkers, health.HistoryCheck(store))
	}
	health.New(application.Router(), checkers...).Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, application *app.App) {
	st := application.Router().Status()

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Printf("║          sussurro %-20s ║\n", "v"+version)
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("Engine", st.Selected)
	printLine("Engines", strings.Join(st.Engines, ", "))
	printLine("Bindings", bindingSummary(cfg))
	printLine("Capture", captureSummary(cfg))
	printLine("Enhancement", enhancementSummary(cfg))
	printLine("Delivery", deliverySummary(cfg))
	printLine("History", historySummary(cfg))
	fmt.Printf("║  Trigger rules   : %-19d ║\n", len(cfg.Triggers))
	fmt.Printf("║  Credential pools: %-19d ║\n", len(cfg.Credentials))
	if cfg.Server.ListenAddr != "" {
		printLine("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-16s: %-19s ║\n", label, value)
}

func bindingSummary(cfg *config.Config) string {
	var parts []string
	if cfg.Bindings.Primary.Enabled {
		parts = append(parts, "primary")
	}
	if cfg.Bindings.Secondary.Enabled {
		parts = append(parts, "secondary")
	}
	if cfg.Bindings.Pointer.Enabled {
		parts = append(parts, "pointer")
	}
	if len(parts) == 0 {
		return "(none enabled)"
	}
	return strings.Join(parts, ", ")
}

func captureSummary(cfg *config.Config) string {
	device := cfg.Capture.Device
	if device == "" {
		device = "default"
	}
	if cfg.Capture.AutoStop {
		return device + " (auto-stop)"
	}
	return device
}

func enhancementSummary(cfg *config.Config) string {
	ec := cfg.Enhancement
	if !ec.Enabled {
		if len(cfg.Triggers) > 0 && ec.Provider != "" {
			return "triggers only"
		}
		return "(disabled)"
	}
	mode := ec.Mode
	if mode == "" {
		mode = "clean"
	}
	return mode + " / " + ec.Provider
}

func deliverySummary(cfg *config.Config) string {
	typer := string(cfg.Delivery.Typer)
	if typer == "" {
		typer = "auto"
	}
	if cfg.Delivery.AutoSubmit {
		return typer + " (auto-submit)"
	}
	return typer
}

func historySummary(cfg *config.Config) string {
	if !cfg.History.IsEnabled() {
		return "(disabled)"
	}
	if cfg.History.Path == "" {
		return "in-memory"
	}
	return cfg.History.Path
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
