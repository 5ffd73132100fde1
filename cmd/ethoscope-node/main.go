// Command ethoscope-node is the node-side fleet controller for a
// distributed network of behavioural-tracking acquisition devices.
//
// It discovers ethoscopes over mDNS, polls each one independently,
// drives user instructions through a validated state machine, persists
// the device/run/user/alert registry, and exposes an HTTP API for the
// fleet and a proxied MJPEG view per device.
//
// Usage:
//
//	ethoscope-node [flags]
//
// Flags:
//
//	-config string   Path to the YAML config file (default "/etc/ethoscope-node/config.yaml")
//	-listen string   Override the configured HTTP listen address
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gilestrolab/ethoscope-node/pkg/config"
	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/notifier"
	"github.com/gilestrolab/ethoscope-node/pkg/scanner"
)

var (
	configPath = flag.String("config", "/etc/ethoscope-node/config.yaml", "Path to the YAML config file")
	listenAddr = flag.String("listen", "", "Override the configured HTTP listen address")
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("config file not found, using defaults", "path", *configPath, "err", err)
		defaults := config.Default()
		cfg = &defaults
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	var logger eventlog.Logger
	fileLogger, err := eventlog.NewFileLogger(cfg.CacheDir + "/events.cbor")
	if err != nil {
		slog.Warn("event log unavailable, continuing without it", "err", err)
		logger = eventlog.NoopLogger{}
	} else {
		logger = eventlog.NewMultiLogger(fileLogger, eventlog.NewSlogAdapter(slog.Default()))
		defer fileLogger.Close()
	}

	app, err := config.New(cfg, scanner.NewMDNSBrowser(), notifier.NewLogNotifier(slog.Default()), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to build app context: %v\n", err)
		return 1
	}
	defer app.Close()

	srv := NewServer(app)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := app.Scanner.Run(ctx); err != nil {
			slog.Error("scanner stopped", "err", err)
		}
	}()

	slog.Info("starting ethoscope-node", "listen_addr", cfg.ListenAddr)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		srv.Shutdown(context.Background())
		return 0
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: server failed: %v\n", err)
			return 1
		}
		return 0
	}
}
