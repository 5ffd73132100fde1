package scanner

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/device"
	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/httpclient"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBrowser struct {
	added   chan *ServiceEntry
	removed chan *ServiceEntry
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{added: make(chan *ServiceEntry, 4), removed: make(chan *ServiceEntry, 4)}
}

func (f *fakeBrowser) Browse(ctx context.Context) (<-chan *ServiceEntry, <-chan *ServiceEntry, error) {
	return f.added, f.removed, nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	updates []string
}

func (r *fakeRegistry) UpdateEthoscope(ctx context.Context, id, name, ip string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, id)
	return nil
}

func (r *fakeRegistry) RunCleanupJobs(ctx context.Context) {}

func mustHostPort(t *testing.T, url string) (string, int) {
	host, portStr, err := net.SplitHostPort(url)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func TestScannerAddsNewDeviceAfterIDFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"abc123","name":"ethoscope_001"}`))
	}))
	defer srv.Close()

	host, port := mustHostPort(t, srv.Listener.Addr().String())

	browser := newFakeBrowser()
	registry := &fakeRegistry{}
	s := New(browser, httpclient.New(nil), registry, eventlog.NoopLogger{}, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	browser.added <- &ServiceEntry{InstanceName: "ethoscope_001", Addresses: []net.IP{net.ParseIP(host)}, Port: port}

	require.Eventually(t, func() bool {
		_, ok := s.Device("abc123")
		return ok
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		registry.mu.Lock()
		defer registry.mu.Unlock()
		return len(registry.updates) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScannerRefreshesExistingDeviceByIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"abc123","name":"ethoscope_001"}`))
	}))
	defer srv.Close()

	host, port := mustHostPort(t, srv.Listener.Addr().String())

	browser := newFakeBrowser()
	s := New(browser, httpclient.New(nil), nil, eventlog.NoopLogger{}, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	entry := &ServiceEntry{InstanceName: "ethoscope_001", Addresses: []net.IP{net.ParseIP(host)}, Port: port}
	browser.added <- entry

	require.Eventually(t, func() bool {
		_, ok := s.Device("abc123")
		return ok
	}, time.Second, 5*time.Millisecond)

	dev, _ := s.Device("abc123")
	dev.SkipScanning()

	browser.added <- entry

	require.Eventually(t, func() bool {
		return len(s.Devices()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestScannerDevicesSnapshotIncludesBlacklistedNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"zzz000","name":"ETHOSCOPE_000"}`))
	}))
	defer srv.Close()
	host, port := mustHostPort(t, srv.Listener.Addr().String())

	browser := newFakeBrowser()
	registry := &fakeRegistry{}
	s := New(browser, httpclient.New(nil), registry, eventlog.NoopLogger{}, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	browser.added <- &ServiceEntry{InstanceName: "ETHOSCOPE_000", Addresses: []net.IP{net.ParseIP(host)}, Port: port}

	require.Eventually(t, func() bool {
		_, ok := s.Device("zzz000")
		return ok
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, s.Devices(), "zzz000")
}

func TestScannerHandleRemoveLatchesSkipScanning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"abc123","name":"ethoscope_001"}`))
	}))
	defer srv.Close()
	host, port := mustHostPort(t, srv.Listener.Addr().String())

	browser := newFakeBrowser()
	s := New(browser, httpclient.New(nil), nil, eventlog.NoopLogger{}, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	entry := &ServiceEntry{InstanceName: "ethoscope_001", Addresses: []net.IP{net.ParseIP(host)}, Port: port}
	browser.added <- entry

	require.Eventually(t, func() bool {
		_, ok := s.Device("abc123")
		return ok
	}, time.Second, 5*time.Millisecond)

	browser.removed <- entry

	dev, _ := s.Device("abc123")
	require.Eventually(t, func() bool {
		return dev.SkipScanning()
	}, time.Second, 5*time.Millisecond)
}

func TestScannerInstallsTransitionHookOnNewDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"abc123","name":"ethoscope_001","status":"running"}`))
	}))
	defer srv.Close()
	host, port := mustHostPort(t, srv.Listener.Addr().String())

	browser := newFakeBrowser()
	cfg := DefaultConfig()
	cfg.DeviceConfig.RefreshPeriod = 10 * time.Millisecond

	var mu sync.Mutex
	var calls int
	hook := func(dev *device.Device, newStatus *status.DeviceStatus) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	}

	s := New(browser, httpclient.New(nil), nil, eventlog.NoopLogger{}, cfg, hook)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	entry := &ServiceEntry{InstanceName: "ethoscope_001", Addresses: []net.IP{net.ParseIP(host)}, Port: port}
	browser.added <- entry

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls > 0
	}, time.Second, 5*time.Millisecond)
}
