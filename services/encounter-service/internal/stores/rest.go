package stores

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicflow/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicflow/libs/otel"
	"github.com/md-rashed-zaman/clinicflow/services/encounter-service/internal/clinicerr"
)

const defaultTimeout = 10 * time.Second

// ClientConfig configures one store client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the instrumented client built from Timeout (tests).
	HTTPClient *http.Client
}

// NewHTTPClient returns the client every store talks through: request-id propagation inside
// otelhttp spans, bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelx.HTTPTransport(httpx.RequestIDTransport{}),
	}
}

type restClient struct {
	baseURL string
	http    *http.Client
}

func newRESTClient(cfg ClientConfig) (*restClient, error) {
	base := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("stores: base url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = NewHTTPClient(cfg.Timeout)
	}
	return &restClient{baseURL: base, http: hc}, nil
}

// do sends in (when non-nil) as JSON and decodes a 2xx body into out (when non-nil).
// An empty 2xx body leaves out untouched and reports ok=false.
func (c *restClient) do(ctx context.Context, op, method, path string, in, out any) (bool, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return false, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return false, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, clinicerr.FromTransport(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, clinicerr.FromTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, clinicerr.FromStatus(op, resp.StatusCode, string(raw))
	}
	if out == nil {
		return true, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return false, nil
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return false, &clinicerr.Error{
			Kind:       clinicerr.KindServer,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	return true, nil
}
