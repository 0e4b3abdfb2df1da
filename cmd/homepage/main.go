// Command homepage serves the personal site and its cached feeds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/urdh/homepage"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file merged into the environment, if it exists")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "homepage: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := homepage.LoadConfig(envFile)
	if err != nil {
		return err
	}

	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "homepage",
		Level:      level,
		JSONFormat: cfg.LogJSON,
	})

	opts := append(homepage.DefaultOptions(), homepage.WithLogger(logger))

	if cfg.TraceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer func() { _ = tp.Shutdown(context.Background()) }()

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.TraceContext{})
		opts = append(opts, homepage.WithTracerProvider(tp))
	}

	srv, err := homepage.NewServer(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Serve(ctx)
}
