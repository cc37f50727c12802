// Package labsource fetches structured lab reports from the remote report
// service and maps uploaded file names to report numbers.
package labsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labdesk/labdesk/internal/platform/jsondoc"
)

var (
	// ErrFetchInProgress is returned when a fetch is already outstanding.
	// The call is dropped, not queued.
	ErrFetchInProgress = errors.New("a report fetch is already in progress")
	ErrUpstream        = errors.New("report source returned an error")
	ErrInvalidPayload  = errors.New("report source returned invalid json")
	ErrPayloadTooLarge = errors.New("report source response too large")
)

// MaxResponseSize caps the body read from the report source (5 MB).
const MaxResponseSize = 5 * 1024 * 1024

// StatusError carries a non-200 response from the report source.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("report source: unexpected status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUpstream }

// Client fetches reports by number from {baseURL}/{number}. At most one
// fetch runs at a time per Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	inFlight   atomic.Bool
}

// NewClient returns a client for baseURL with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the report source endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Busy reports whether a fetch is currently outstanding.
func (c *Client) Busy() bool { return c.inFlight.Load() }

// Fetch retrieves report number n and decodes it with key order intact.
// It fails fast with ErrFetchInProgress while another fetch is running.
func (c *Client) Fetch(ctx context.Context, n int) (jsondoc.Value, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return jsondoc.Value{}, ErrFetchInProgress
	}
	defer c.inFlight.Store(false)

	url := c.baseURL + "/" + strconv.Itoa(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return jsondoc.Value{}, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jsondoc.Value{}, fmt.Errorf("fetch report %d: %w", n, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read at most 1KB of response body.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return jsondoc.Value{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return jsondoc.Value{}, fmt.Errorf("read report %d: %w", n, err)
	}
	if len(body) > MaxResponseSize {
		return jsondoc.Value{}, ErrPayloadTooLarge
	}

	doc, err := jsondoc.Parse(body)
	if err != nil {
		return jsondoc.Value{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return doc, nil
}
