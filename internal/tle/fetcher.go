package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"

	// DefaultObjectURL fetches a single object by catalog number; %d is the NORAD ID.
	DefaultObjectURL = "https://celestrak.org/NORAD/elements/gp.php?CATNR=%d&FORMAT=tle"

	maxBodyBytes = 50 << 20
)

// ErrNoData is returned when a source answers but has no element set for
// the requested object.
var ErrNoData = errors.New("no element data")

// Fetcher retrieves raw TLE data over HTTP.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	objectURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for a primary bulk source plus optional extra
// sources whose data is appended to the primary's.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = defaultSourceURL
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		objectURL: DefaultObjectURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// WithObjectURL sets the per-object URL template (must contain one %d).
func (f *Fetcher) WithObjectURL(tmpl string) *Fetcher {
	if tmpl != "" {
		f.objectURL = tmpl
	}
	return f
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Fetch retrieves the primary source and appends every extra source that
// succeeds. Only a primary failure is returned as an error.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		body = append(body, extra...)
	}

	return body, nil
}

// FetchObject retrieves the element set of a single object. It returns an
// error wrapping ErrNoData when the source has nothing for noradID.
func (f *Fetcher) FetchObject(ctx context.Context, noradID int) (TLEEntry, error) {
	u := fmt.Sprintf(f.objectURL, noradID)
	body, err := f.get(ctx, u)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return TLEEntry{}, fmt.Errorf("NORAD %d: %w", noradID, ErrNoData)
		}
		return TLEEntry{}, err
	}

	entries, err := Parse(bytes.NewReader(body), f.logger)
	if err != nil {
		return TLEEntry{}, err
	}
	for _, e := range entries {
		if e.NORADID == noradID {
			return e, nil
		}
	}

	// CelesTrak answers unknown catalog numbers with 200 and a plain-text notice.
	f.logger.Debug("object source returned no element set",
		"norad_id", noradID,
		"body", strings.TrimSpace(string(body[:min(len(body), 80)])),
	)
	return TLEEntry{}, fmt.Errorf("NORAD %d: %w", noradID, ErrNoData)
}

type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.code, e.url)
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, url: url}
	}

	// Read one byte past the limit to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	return body, nil
}
