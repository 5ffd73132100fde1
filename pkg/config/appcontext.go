package config

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/device"
	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/httpclient"
	"github.com/gilestrolab/ethoscope-node/pkg/notifier"
	"github.com/gilestrolab/ethoscope-node/pkg/registry"
	"github.com/gilestrolab/ethoscope-node/pkg/scanner"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
)

// AppContext bundles every long-lived collaborator the daemon needs,
// constructed once in main and passed by reference from there. Nothing
// in this module reaches for a package-level singleton instead.
type AppContext struct {
	Config *Config

	Registry   *registry.Store
	Client     *httpclient.Client
	Scanner    *scanner.Scanner
	Dispatcher *notifier.Dispatcher
	Logger     eventlog.Logger
}

// New wires an AppContext from cfg. browser and notify are supplied by
// the caller so cmd/ethoscope-node can choose the real mDNS browser and
// a concrete Notifier implementation while tests substitute fakes.
func New(cfg *Config, browser scanner.Browser, notify notifier.Notifier, logger eventlog.Logger) (*AppContext, error) {
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}

	store, err := registry.Open(cfg.RegistryDBPath)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	store.SetCleanupConfig(registry.CleanupConfig{
		RetireAfter:        cfg.RetireAfter,
		StuckStatusTimeout: cfg.StuckStatusTimeout,
	})

	client := httpclient.New(&http.Client{Timeout: 30 * time.Second})

	deviceCfg := device.Config{
		RefreshPeriod:              cfg.RefreshPeriod,
		BusyRefreshPeriod:          cfg.BusyRefreshPeriod,
		MaxConsecutiveErrors:       cfg.MaxConsecutiveErrors,
		ConnectionRefusedThreshold: cfg.ConnectionRefusedThreshold,
		UserActionTimeout:          cfg.UserActionTimeout,
		GracefulShutdownGrace:      cfg.GracefulShutdownGrace,
		BusyTimeout:                cfg.BusyTimeout,
		UnreachableTimeout:         cfg.UnreachableTimeout,
	}

	scanCfg := scanner.Config{
		DeviceConfig:    deviceCfg,
		ResultsDir:      cfg.ResultsDir,
		CleanupInterval: cfg.CleanupInterval,
		IDFetchTimeout:  cfg.IDFetchTimeout,
	}

	tracker := registry.NewStatusTracker(store)

	var dispatcher *notifier.Dispatcher
	if notify != nil {
		runLookup := func(ctx context.Context, deviceID string) *int64 {
			runs, err := store.ActiveRunsFor(ctx, deviceID)
			if err != nil || len(runs) == 0 {
				return nil
			}
			return &runs[0].RunID
		}
		dispatcher = notifier.NewDispatcher(store, notify, runLookup)
	}

	// Every committed transition reaches both collaborators: the tracker
	// keeps last_status/runs live, the dispatcher (when configured) sends
	// alerts. Order doesn't matter: each reads its own inputs off
	// newStatus and dev, independently of the other's side effects.
	onTransition := func(dev *device.Device, newStatus *status.DeviceStatus) {
		tracker.OnTransition(dev, newStatus)
		if dispatcher != nil {
			dispatcher.OnTransition(dev, newStatus)
		}
	}

	sc := scanner.New(browser, client, store, logger, scanCfg, onTransition)

	return &AppContext{
		Config:     cfg,
		Registry:   store,
		Client:     client,
		Scanner:    sc,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, nil
}

// Close releases resources held by the AppContext (currently just the
// registry's database handle).
func (a *AppContext) Close() error {
	return a.Registry.Close()
}
