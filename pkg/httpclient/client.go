package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is applied when the caller passes a zero timeout.
	DefaultTimeout = 5 * time.Second

	// maxRetries is the number of additional attempts after the first.
	maxRetries = 2

	userAgent = "ethoscope-node/1.0"
)

// Client issues JSON requests against ethoscope devices with bounded
// exponential backoff retry on transport failures.
type Client struct {
	httpClient *http.Client
}

// New constructs a Client. The supplied http.Client, if any, is reused for
// every request; a zero value uses http.DefaultTransport.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// GetJSON issues a GET (or, when postData is non-nil, a POST) against url
// and decodes the JSON response body into a map.
//
// On HTTP >= 400, a URL error, or a read timeout it returns *NetworkError
// and retries up to maxRetries additional times with exponential backoff
// capped at MaxBackoff. On an empty body or JSON-parse failure it returns
// *ScanException immediately, without retrying. Retries are transparent:
// the caller only ever observes the final outcome.
func (c *Client) GetJSON(ctx context.Context, url string, timeout time.Duration, postData any) (map[string]any, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	backoff := NewBackoff()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := c.doOnce(ctx, url, timeout, postData)
		if err == nil {
			return result, nil
		}

		var scanErr *ScanException
		if errors.As(err, &scanErr) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff.Next()):
			}
		}
	}

	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, url string, timeout time.Duration, postData any) (map[string]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := http.MethodGet
	var body io.Reader
	if postData != nil {
		encoded, err := json.Marshal(postData)
		if err != nil {
			return nil, &ScanException{URL: url, Err: fmt.Errorf("encode post_data: %w", err)}
		}
		body = bytes.NewReader(encoded)
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}

	if len(raw) == 0 {
		return nil, &ScanException{URL: url, Err: fmt.Errorf("empty response body")}
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ScanException{URL: url, Err: err}
	}

	return result, nil
}
