package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultBeaconTimeout = 2 * time.Second

	eventsPath = "/v1/events"
	beaconPath = "/v1/beacon"
)

// HTTPOptions configures the HTTP transport.
type HTTPOptions struct {
	// Endpoint is the collector base URL, e.g. http://localhost:8787.
	Endpoint string
	// SDKKey is attached to every request when set.
	SDKKey string
	// Client overrides the normal-path HTTP client.
	Client *http.Client
	// Timeout applies to normal-path posts when Client is nil.
	Timeout time.Duration
	// BeaconTimeout bounds beacon and keepalive sends.
	BeaconTimeout time.Duration
	// DisableKeepalive reports keepalive as unsupported, forcing terminating
	// flushes onto the beacon path. Useful to simulate teardown in tests.
	DisableKeepalive bool
}

// HTTP delivers batches to a collector as JSON over HTTP.
type HTTP struct {
	eventsURL string
	beaconURL string
	sdkKey    string
	client    *http.Client
	short     *http.Client
	keepalive bool
}

// NewHTTP creates an HTTP transport for the given collector.
func NewHTTP(opts HTTPOptions) *HTTP {
	base := strings.TrimRight(opts.Endpoint, "/")

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	beaconTimeout := opts.BeaconTimeout
	if beaconTimeout <= 0 {
		beaconTimeout = defaultBeaconTimeout
	}

	return &HTTP{
		eventsURL: base + eventsPath,
		beaconURL: base + beaconPath,
		sdkKey:    opts.SDKKey,
		client:    client,
		short:     &http.Client{Timeout: beaconTimeout},
		keepalive: !opts.DisableKeepalive,
	}
}

// Post implements Transport. It retries per opts.Policy, sleeping the policy
// backoff between attempts, and returns the final attempt's outcome.
func (h *HTTP) Post(ctx context.Context, payload []byte, opts PostOptions) (Result, error) {
	attempts := opts.Policy.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	var res Result
	var err error
	for attempt := uint32(1); attempt <= attempts; attempt++ {
		res, err = h.once(ctx, payload, opts.Keepalive)
		if err == nil && res.OK {
			return res, nil
		}
		if err == nil && !retryableStatus(res.Status) {
			return res, nil
		}
		if attempt == attempts {
			break
		}
		if d := opts.Policy.Backoff(attempt); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}
	}
	return res, err
}

func (h *HTTP) once(ctx context.Context, payload []byte, keepalive bool) (Result, error) {
	client := h.client
	if keepalive {
		// Short deadline so a terminating flush cannot stall shutdown.
		client = h.short
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.eventsURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Flare-Client-Time", strconv.FormatInt(time.Now().UnixMilli(), 10))
	if h.sdkKey != "" {
		req.Header.Set("X-Flare-Key", h.sdkKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	res := Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
	}
	if body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil && len(body) > 0 {
		res.HasBody = true
		res.Body = string(body)
	}
	return res, nil
}

// SendBeacon implements Transport. The key travels in the query string since
// beacon-style sends carry no headers.
func (h *HTTP) SendBeacon(payload []byte) bool {
	target := h.beaconURL
	if h.sdkKey != "" {
		target += "?k=" + url.QueryEscape(h.sdkKey)
	}

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.short.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	return resp.StatusCode < 400
}

// SupportsKeepalive implements Transport.
func (h *HTTP) SupportsKeepalive() bool {
	return h.keepalive
}

func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests
}

var _ Transport = (*HTTP)(nil)
