package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tailored-agentic-units/remoting/dispatch"
	"github.com/tailored-agentic-units/remoting/observability"
	"github.com/tailored-agentic-units/remoting/server"
	"github.com/tailored-agentic-units/remoting/session"
	"github.com/tailored-agentic-units/remoting/telemetry"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to server config file, JSON or YAML (optional)")
		addr       = flag.String("addr", "", "Listen address (overrides config)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	flag.Parse()

	cfg := server.DefaultConfig()
	if *configFile != "" {
		loaded, err := server.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if err := server.LoadEnv(&cfg); err != nil {
		log.Fatalf("Failed to load environment: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		log.Fatalf("Failed to select observer: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := dispatch.NewMetrics(reg)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	router := session.NewRouter()
	if err := registerCommands(router); err != nil {
		log.Fatalf("Failed to register commands: %v", err)
	}

	registry, err := session.NewRegistry(&cfg.Session, router)
	if err != nil {
		log.Fatalf("Failed to create session registry: %v", err)
	}

	dispatcher, err := dispatch.New(&cfg.Dispatch, registry,
		dispatch.WithObserver(observability.Combine(
			observer,
			observability.SpanObserver{MinLevel: observability.LevelWarning},
		)),
		dispatch.WithMetrics(metrics),
	)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}

	srv, err := server.New(&cfg, dispatcher, registry,
		server.WithGatherer(reg),
		server.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
