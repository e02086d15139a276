// Package client calls the ascas HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/star/ascas/internal/api"
	"github.com/star/ascas/internal/catalog"
	"github.com/star/ascas/internal/httputil"
	"github.com/star/ascas/internal/resolver"
)

const maxResponseBytes = 32 << 20

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx answer, or a 207 partial failure. Body is decoded
// from the server's error response; on a partial failure it carries the
// successful slot.
type APIError struct {
	Status int
	Body   api.ErrorResponse
}

func (e *APIError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Body.Kind != "" {
		return fmt.Sprintf("%s (%d %s)", msg, e.Status, e.Body.Kind)
	}
	return fmt.Sprintf("%s (%d)", msg, e.Status)
}

// Is matches the resolver sentinel of the error's kind.
func (e *APIError) Is(target error) bool {
	return (&resolver.QueryError{Kind: e.Body.Kind}).Is(target)
}

// Partial reports whether the error carries one successful slot.
func (e *APIError) Partial() bool {
	return e.Status == http.StatusMultiStatus
}

// Positions submits a two-object query. requestID is sent as X-Request-ID;
// an empty value gets a fresh UUID.
func (c *Client) Positions(ctx context.Context, requestID string, req api.PositionsRequest) (*api.PositionsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	var resp api.PositionsResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/positions", requestID, bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PropagateParams are the optional parameters of a single-object query.
type PropagateParams struct {
	Epoch   time.Time
	Step    time.Duration
	Horizon int
	Frame   string
}

// Propagate fetches the trajectory of a single object.
func (c *Client) Propagate(ctx context.Context, id string, p PropagateParams) (*api.ObjectResponse, error) {
	q := url.Values{}
	if !p.Epoch.IsZero() {
		q.Set("epoch", p.Epoch.UTC().Format(time.RFC3339))
	}
	if p.Step > 0 {
		q.Set("step", strconv.FormatInt(int64(p.Step/time.Second), 10))
	}
	if p.Horizon > 0 {
		q.Set("horizon", strconv.Itoa(p.Horizon))
	}
	if p.Frame != "" {
		q.Set("frame", p.Frame)
	}
	path := "/api/v1/propagate/" + url.PathEscape(id)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp api.ObjectResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Conjunction runs a closest-approach search. Zero start and window use the
// server defaults.
func (c *Client) Conjunction(ctx context.Context, sat1, sat2 string, start time.Time, window time.Duration) (*api.ConjunctionResponse, error) {
	q := url.Values{"sat1": {sat1}, "sat2": {sat2}}
	if !start.IsZero() {
		q.Set("epoch", start.UTC().Format(time.RFC3339))
	}
	if window > 0 {
		q.Set("window", window.String())
	}
	var resp api.ConjunctionResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/conjunction?"+q.Encode(), "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Catalog lists the reference objects offered by the server.
func (c *Client) Catalog(ctx context.Context) ([]catalog.SatelliteRef, error) {
	var refs []catalog.SatelliteRef
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog", "", nil, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

// RefreshTLE asks the server to reload its element dataset.
func (c *Client) RefreshTLE(ctx context.Context) (map[string]any, error) {
	var meta map[string]any
	if err := c.do(ctx, http.MethodPost, "/api/v1/tle/fetch", "", nil, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func (c *Client) do(ctx context.Context, method, path, requestID string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(httputil.RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, &apiErr.Body); err != nil {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// IsPartial reports whether err is a partial failure and returns it.
func IsPartial(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Partial() {
		return apiErr, true
	}
	return nil, false
}
