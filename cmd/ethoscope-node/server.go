package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/config"
	"github.com/gilestrolab/ethoscope-node/pkg/ethoscope"
	"github.com/gilestrolab/ethoscope-node/pkg/stream"
)

// streamPort is the device-side TCP port the length-prefixed frame
// socket listens on (spec §6, "device streaming interface").
const streamPort = 8887

// Server is the HTTP server fronting the fleet: device listing,
// instruction dispatch, and a proxied MJPEG view per device.
type Server struct {
	app    *config.AppContext
	mux    *http.ServeMux
	server *http.Server

	streamMu sync.Mutex
	streams  map[string]*stream.Manager
}

// NewServer builds a Server wired to app.
func NewServer(app *config.AppContext) *Server {
	s := &Server{
		app:     app,
		mux:     http.NewServeMux(),
		streams: make(map[string]*stream.Manager),
	}
	s.registerRoutes()
	s.server = &http.Server{Addr: app.Config.ListenAddr, Handler: s.mux}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/health", s.handleHealth)
	s.mux.HandleFunc("/api/v1/devices", s.handleDevices)
	s.mux.HandleFunc("/api/v1/devices/", s.handleDeviceRoutes)
}

// handleDeviceRoutes routes /api/v1/devices/:id, /api/v1/devices/:id/instruction
// and /api/v1/devices/:id/stream.
func (s *Server) handleDeviceRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		s.handleDeviceByID(w, r, id)
	case parts[1] == "instruction":
		s.handleInstruction(w, r, id)
	case parts[1] == "stream":
		s.handleStream(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDevices lists every device currently live in the scanner's
// directory, including blacklisted ones.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	devices := s.app.Scanner.Devices()
	out := make([]map[string]any, 0, len(devices))
	for id, dev := range devices {
		info, st := dev.Snapshot()
		ip, port := dev.Address()
		out = append(out, map[string]any{
			"id":     id,
			"ip":     ip,
			"port":   port,
			"status": st.StatusName,
			"info":   info,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeviceByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dev, ok := s.app.Scanner.Device(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	info, st := dev.Snapshot()
	backupStatus, backupMethod, backupSize := dev.BackupInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            id,
		"status":        st,
		"info":          info,
		"backup_status": backupStatus,
		"backup_method": backupMethod,
		"backup_size":   backupSize,
	})
}

type instructionRequest struct {
	Instruction string         `json:"instruction"`
	Data        map[string]any `json:"data,omitempty"`
}

// handleInstruction validates and dispatches a user instruction to a
// device. A DeviceError from the validator surfaces as a 409; any other
// failure to send is a 502.
func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dev, ok := s.app.Scanner.Device(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := dev.SendInstruction(ctx, req.Instruction, req.Data); err != nil {
		code := http.StatusBadGateway
		var devErr *ethoscope.DeviceError
		if errors.As(err, &devErr) {
			code = http.StatusConflict
		}
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleStream proxies the device's upstream MJPEG frame socket to the
// requesting HTTP client, sharing one upstream connection per device
// across every concurrent viewer.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, id string) {
	dev, ok := s.app.Scanner.Device(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	mgr := s.streamManagerFor(id, dev)

	sub, err := mgr.Subscribe(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	for {
		part, err := sub.Next(r.Context())
		if err != nil {
			return
		}
		if _, err := w.Write(part); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (s *Server) streamManagerFor(id string, dev interface{ Address() (string, int) }) *stream.Manager {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()

	if mgr, ok := s.streams[id]; ok {
		return mgr
	}

	dial := func(ctx context.Context) (net.Conn, error) {
		ip, _ := dev.Address()
		d := net.Dialer{Timeout: 5 * time.Second}
		return d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(streamPort)))
	}

	mgr := stream.NewManager(id, dial, s.app.Logger)
	s.streams[id] = mgr
	return mgr
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and every stream manager.
func (s *Server) Shutdown(ctx context.Context) error {
	s.streamMu.Lock()
	for _, mgr := range s.streams {
		mgr.Stop()
	}
	s.streamMu.Unlock()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
