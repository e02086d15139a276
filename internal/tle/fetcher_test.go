package tle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issTLE = "ISS (ZARYA)\n1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005\n2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"

	// Served without a trailing newline to exercise source concatenation.
	hstTLE = "HST\n1 27663U 03004A   24100.50000000  .00000000  00000-0  00000-0 0  9993\n2 27663  28.4700 120.0000 0002500  90.0000  45.0000 15.09000000    22"
)

func serve(t *testing.T, status int, body string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// TestFetch covers the bulk fetch: the primary source must succeed, extra
// sources are appended when they answer and skipped when they fail.
func TestFetch(t *testing.T) {
	tests := []struct {
		name    string
		primary func(t *testing.T) string
		extras  func(t *testing.T) []string
		wantIDs []int
		wantErr string
	}{
		{
			name:    "primary only",
			primary: func(t *testing.T) string { return serve(t, http.StatusOK, issTLE) },
			wantIDs: []int{25544},
		},
		{
			name:    "primary error",
			primary: func(t *testing.T) string { return serve(t, http.StatusInternalServerError, "") },
			wantErr: "unexpected status code 500",
		},
		{
			name:    "extra appended after unterminated primary",
			primary: func(t *testing.T) string { return serve(t, http.StatusOK, hstTLE) },
			extras:  func(t *testing.T) []string { return []string{serve(t, http.StatusOK, issTLE)} },
			wantIDs: []int{27663, 25544},
		},
		{
			name:    "failing extra skipped",
			primary: func(t *testing.T) string { return serve(t, http.StatusOK, issTLE) },
			extras: func(t *testing.T) []string {
				return []string{serve(t, http.StatusServiceUnavailable, ""), serve(t, http.StatusOK, hstTLE)}
			},
			wantIDs: []int{25544, 27663},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var extras []string
			if tt.extras != nil {
				extras = tt.extras(t)
			}
			data, err := NewFetcher(tt.primary(t), testLogger, extras...).Fetch(context.Background())
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			entries, err := Parse(strings.NewReader(string(data)), testLogger)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if len(entries) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(entries), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if entries[i].NORADID != id {
					t.Errorf("entry %d = NORAD %d, want %d", i, entries[i].NORADID, id)
				}
			}
		})
	}
}

// TestFetchBodyLimit verifies oversized responses fail instead of being
// buffered without bound.
func TestFetchBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := strings.Repeat("A", 1<<20)
		for written := 0; written <= maxBodyBytes; written += len(chunk) {
			if _, err := io.WriteString(w, chunk); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	_, err := NewFetcher(server.URL, testLogger).Fetch(context.Background())
	if err == nil || !strings.Contains(err.Error(), "byte limit") {
		t.Fatalf("err = %v, want body limit error", err)
	}
}

// TestFetchObject verifies the per-object template is expanded with the NORAD ID.
func TestFetchObject(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("CATNR")
		w.Write([]byte(issTLE))
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger).WithObjectURL(server.URL + "/gp.php?CATNR=%d&FORMAT=tle")
	entry, err := fetcher.FetchObject(context.Background(), 25544)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "25544" {
		t.Errorf("CATNR = %q, want 25544", gotQuery)
	}
	if entry.NORADID != 25544 || entry.Name != "ISS (ZARYA)" {
		t.Errorf("entry = %d %q, want 25544 ISS (ZARYA)", entry.NORADID, entry.Name)
	}
}

// TestFetchObjectNoData verifies that an empty answer and a 404 both map to ErrNoData.
func TestFetchObjectNoData(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"plain-text notice", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("No GP data found\n"))
		}},
		{"not found status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}},
		{"different object", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(issTLE))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			fetcher := NewFetcher(server.URL, testLogger).WithObjectURL(server.URL + "/?CATNR=%d")
			_, err := fetcher.FetchObject(context.Background(), 99999999)
			if !errors.Is(err, ErrNoData) {
				t.Fatalf("err = %v, want ErrNoData", err)
			}
			if !strings.Contains(err.Error(), "99999999") {
				t.Errorf("error %q does not name the object", err)
			}
		})
	}
}

// TestFetchObjectUpstreamFailure verifies server errors are not reported as missing data.
func TestFetchObjectUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := NewFetcher(server.URL, testLogger).WithObjectURL(server.URL + "/?CATNR=%d")
	_, err := fetcher.FetchObject(context.Background(), 25544)
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if errors.Is(err, ErrNoData) {
		t.Errorf("502 should not be ErrNoData: %v", err)
	}
}
