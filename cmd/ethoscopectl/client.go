package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// apiClient is a thin wrapper over ethoscope-node's HTTP API. It is
// intentionally not pkg/httpclient: that package's retry policy targets
// device polling, while admin actions should fail fast and surface the
// server's own error message verbatim.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *apiClient) post(path string, payload any, out any) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func apiError(status int, body []byte) error {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return fmt.Errorf("server returned %d: %s", status, parsed.Error)
	}
	return fmt.Errorf("server returned %d", status)
}

func (c *apiClient) listDevices() ([]map[string]any, error) {
	var out []map[string]any
	err := c.get("/api/v1/devices", &out)
	return out, err
}

func (c *apiClient) showDevice(id string) (map[string]any, error) {
	var out map[string]any
	err := c.get("/api/v1/devices/"+id, &out)
	return out, err
}

func (c *apiClient) sendInstruction(id, instruction string) error {
	payload := map[string]any{"instruction": instruction}
	return c.post("/api/v1/devices/"+id+"/instruction", payload, nil)
}
