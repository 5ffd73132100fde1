package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{{"id": "ETHOSCOPE_001", "ip": "192.168.1.2"}})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	devices, err := client.listDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devices) != 1 || devices[0]["id"] != "ETHOSCOPE_001" {
		t.Errorf("unexpected devices: %+v", devices)
	}
}

func TestSendInstructionSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "instruction not allowed from current status"})
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	err := client.sendInstruction("ETHOSCOPE_001", "start")
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); got != "server returned 409: instruction not allowed from current status" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestShowDeviceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newAPIClient(srv.URL)
	_, err := client.showDevice("ETHOSCOPE_999")
	if err == nil {
		t.Fatal("expected an error")
	}
}
