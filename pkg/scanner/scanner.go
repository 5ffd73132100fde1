package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/device"
	"github.com/gilestrolab/ethoscope-node/pkg/ethoscope"
	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/httpclient"
)

// Registry is the subset of the persistent store the scanner needs: an
// upsert the store is free to refuse (e.g. for a blacklisted name) and the
// periodic housekeeping jobs the scanner drives on a timer.
type Registry interface {
	UpdateEthoscope(ctx context.Context, id, name, ip string, port int) error
	RunCleanupJobs(ctx context.Context)
}

// Config bundles what the scanner needs to instantiate new devices.
type Config struct {
	DeviceConfig     device.Config
	ResultsDir       string
	CleanupInterval  time.Duration
	IDFetchTimeout   time.Duration
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		DeviceConfig:    device.DefaultConfig(),
		CleanupInterval: time.Hour,
		IDFetchTimeout:  5 * time.Second,
	}
}

// Scanner owns the device directory exclusively: it is the only component
// that adds, refreshes, or latches-off a device's polling loop.
type Scanner struct {
	mu sync.Mutex

	browser     Browser
	client      *httpclient.Client
	registry    Registry
	logger      eventlog.Logger
	cfg         Config
	onTransition device.TransitionHook

	byID     map[string]*ethoscope.Ethoscope
	byIP     map[string]*ethoscope.Ethoscope
	cancelFn map[string]context.CancelFunc
}

// New constructs a Scanner. registry may be nil, in which case devices are
// never persisted (useful for tests). onTransition may be nil; when set, it
// is installed on every device the scanner instantiates, so alert dispatch
// and run/status tracking see every committed transition.
func New(browser Browser, client *httpclient.Client, registry Registry, logger eventlog.Logger, cfg Config, onTransition device.TransitionHook) *Scanner {
	if logger == nil {
		logger = eventlog.NoopLogger{}
	}
	return &Scanner{
		browser:      browser,
		client:       client,
		registry:     registry,
		logger:       logger,
		cfg:          cfg,
		onTransition: onTransition,
		byID:         make(map[string]*ethoscope.Ethoscope),
		byIP:         make(map[string]*ethoscope.Ethoscope),
		cancelFn:     make(map[string]context.CancelFunc),
	}
}

// Run browses for devices and drives the directory until ctx is cancelled.
// Stopping the scanner stops every device in turn and then returns.
func (s *Scanner) Run(ctx context.Context) error {
	added, removed, err := s.browser.Browse(ctx)
	if err != nil {
		return fmt.Errorf("start mdns browse: %w", err)
	}

	var cleanupTicker *time.Ticker
	var cleanupC <-chan time.Time
	if s.registry != nil && s.cfg.CleanupInterval > 0 {
		cleanupTicker = time.NewTicker(s.cfg.CleanupInterval)
		cleanupC = cleanupTicker.C
		defer cleanupTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return nil

		case entry, ok := <-added:
			if !ok {
				continue
			}
			s.handleAdd(ctx, entry)

		case entry, ok := <-removed:
			if !ok {
				continue
			}
			s.handleRemove(entry)

		case <-cleanupC:
			s.registry.RunCleanupJobs(ctx)
		}
	}
}

// handleAdd implements add_service (spec §4.8): refresh an existing device
// matched by IP, or fetch /id and instantiate a new one.
func (s *Scanner) handleAdd(ctx context.Context, entry *ServiceEntry) {
	ip := entry.firstAddress()
	if ip == "" {
		return
	}

	s.mu.Lock()
	existing, found := s.byIP[ip]
	s.mu.Unlock()

	if found {
		existing.ResetErrorState()
		existing.UpdateAddress(ip, entry.Port)
		return
	}

	idURL := fmt.Sprintf("http://%s:%d/id", ip, entry.Port)
	idInfo, err := s.client.GetJSON(ctx, idURL, s.cfg.IDFetchTimeout, nil)
	if err != nil {
		slog.Debug("scanner: id fetch failed for new device", "ip", ip, "err", err)
		return
	}

	id, _ := idInfo["id"].(string)
	if id == "" {
		return
	}
	name, _ := idInfo["name"].(string)
	if name == "" {
		name = entry.MachineName
	}

	s.mu.Lock()
	if renamed, ok := s.byID[id]; ok {
		// Same id re-advertising under a different IP: just update it.
		s.mu.Unlock()
		renamed.ResetErrorState()
		renamed.UpdateAddress(ip, entry.Port)
		return
	}
	s.mu.Unlock()

	dev := ethoscope.New(id, name, ip, entry.Port, s.client, s.cfg.ResultsDir, s.cfg.DeviceConfig, s.logger)
	if s.onTransition != nil {
		dev.SetTransitionHook(s.onTransition)
	}

	devCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.byID[id] = dev
	s.byIP[ip] = dev
	s.cancelFn[id] = cancel
	s.mu.Unlock()

	if s.registry != nil {
		if err := s.registry.UpdateEthoscope(ctx, id, name, ip, entry.Port); err != nil {
			slog.Debug("scanner: registry refused device", "id", id, "name", name, "err", err)
		}
	}

	go dev.Run(devCtx)
}

// handleRemove implements remove_service (spec §4.8): the directory is
// append-mostly. A vanished advertisement latches skip_scanning and marks
// the device offline; it does not delete the record.
func (s *Scanner) handleRemove(entry *ServiceEntry) {
	ip := entry.firstAddress()
	if ip == "" {
		return
	}

	s.mu.Lock()
	dev, found := s.byIP[ip]
	s.mu.Unlock()
	if !found {
		return
	}

	dev.MarkRemoved()
}

// Device looks up a device by id.
func (s *Scanner) Device(id string) (*ethoscope.Ethoscope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.byID[id]
	return dev, ok
}

// Devices returns a snapshot of every live device, keyed by id. It
// includes blacklisted devices (e.g. ETHOSCOPE_000): they are live-polled
// but never registry-persisted.
func (s *Scanner) Devices() map[string]*ethoscope.Ethoscope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*ethoscope.Ethoscope, len(s.byID))
	for id, dev := range s.byID {
		out[id] = dev
	}
	return out
}

func (s *Scanner) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancelFn {
		cancel()
	}
}
