package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gilestrolab/ethoscope-node/pkg/config"
	"github.com/gilestrolab/ethoscope-node/pkg/scanner"
)

type noopBrowser struct{}

func (noopBrowser) Browse(ctx context.Context) (<-chan *scanner.ServiceEntry, <-chan *scanner.ServiceEntry, error) {
	added := make(chan *scanner.ServiceEntry)
	removed := make(chan *scanner.ServiceEntry)
	go func() {
		<-ctx.Done()
		close(added)
		close(removed)
	}()
	return added, removed, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RegistryDBPath = filepath.Join(t.TempDir(), "node.db")

	app, err := config.New(&cfg, noopBrowser{}, nil, nil)
	if err != nil {
		t.Fatalf("failed to build app context: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	return NewServer(app)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status %q, got %q", "ok", resp["status"])
	}
}

func TestDevicesEndpointEmptyDirectory(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("expected no devices, got %d", len(resp))
	}
}

func TestDevicesEndpointMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestDeviceByIDNotFound(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/ETHOSCOPE_001", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestInstructionUnknownDevice(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"instruction":"start"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/ETHOSCOPE_001/instruction", body)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestStreamUnknownDevice(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/ETHOSCOPE_001/stream", nil)
	w := httptest.NewRecorder()
	srv.mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}
