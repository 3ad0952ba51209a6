package slack

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prdeck/prdeck/internal/source"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "xoxb-test", srv.Client())
}

func TestResolveChannelIDPagesUntilMatch(t *testing.T) {
	var cursors []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.list" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		if cursor == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"channels": []map[string]any{
					{"id": "C001", "name": "general"},
					{"id": "C002", "name": "random"},
				},
				"response_metadata": map[string]any{"next_cursor": "page2"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"channels": []map[string]any{
				{"id": "C042", "name": "pr-reviews"},
			},
		})
	}))

	id, err := client.ResolveChannelID(t.Context(), "#pr-reviews")
	if err != nil {
		t.Fatalf("ResolveChannelID: %v", err)
	}
	if id != "C042" {
		t.Fatalf("expected C042, got %q", id)
	}
	if len(cursors) != 2 || cursors[1] != "page2" {
		t.Fatalf("expected two pages with cursor forwarded, got %v", cursors)
	}
}

func TestResolveChannelIDNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"channels": []map[string]any{{"id": "C001", "name": "general"}},
		})
	}))

	if _, err := client.ResolveChannelID(t.Context(), "nope"); err == nil {
		t.Fatal("expected not-found error")
	}
	if _, err := client.ResolveChannelID(t.Context(), "  "); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestMessagesSincePassesOldestAndPaginates(t *testing.T) {
	since := time.Date(2025, 3, 10, 12, 0, 0, 200000, time.UTC)
	var oldest []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.history" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("channel"); got != "C042" {
			t.Fatalf("unexpected channel %q", got)
		}
		oldest = append(oldest, r.URL.Query().Get("oldest"))
		if r.URL.Query().Get("cursor") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"text": "please review https://github.com/acme/api/pull/42", "ts": "1741608000.000100"},
				},
				"response_metadata": map[string]any{"next_cursor": "more"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"messages": []map[string]any{
				{"text": "and this one too", "ts": "1741608060.000000"},
			},
		})
	}))

	messages, err := client.MessagesSince(t.Context(), "C042", &since)
	if err != nil {
		t.Fatalf("MessagesSince: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages across pages, got %d", len(messages))
	}
	want := formatSlackTS(since)
	if len(oldest) != 2 || oldest[0] != want || oldest[1] != want {
		t.Fatalf("expected oldest=%q on every page, got %v", want, oldest)
	}
	// Slack stamps are parsed through float64, so allow sub-millisecond drift.
	if got, want := messages[0].Timestamp, time.Unix(1741608000, 100000).UTC(); got.Sub(want).Abs() > time.Millisecond {
		t.Fatalf("unexpected first timestamp %v", got)
	}
}

func TestMessagesSinceNilFetchesRecentWindow(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("oldest") {
			t.Fatalf("expected no oldest param, got %q", r.URL.Query().Get("oldest"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))

	messages, err := client.MessagesSince(t.Context(), "C042", nil)
	if err != nil {
		t.Fatalf("MessagesSince: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected empty history, got %d", len(messages))
	}
}

func TestCallClassifiesEnvelopeRateLimit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "ratelimited"})
	}))

	_, err := client.MessagesSince(t.Context(), "C042", nil)
	if !errors.Is(err, source.ErrRateLimited) {
		t.Fatalf("expected rate-limit classification, got %v", err)
	}
}

func TestCallSurfacesEnvelopeError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	}))

	_, err := client.MessagesSince(t.Context(), "C042", nil)
	if err == nil || errors.Is(err, source.ErrRateLimited) {
		t.Fatalf("expected plain envelope error, got %v", err)
	}
}

func TestCallSurfacesHTTPError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.MessagesSince(t.Context(), "C042", nil)
	var httpErr *source.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 HTTPError, got %v", err)
	}
}

func TestSlackTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 10, 12, 0, 0, 200000, time.UTC)
	encoded := formatSlackTS(ts)
	if encoded != "1741608000.000200" {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if got := parseSlackTS(encoded); got.Sub(ts).Abs() > time.Millisecond {
		t.Fatalf("round trip drifted: %v != %v", got, ts)
	}
	if got := parseSlackTS("garbage"); !got.IsZero() {
		t.Fatalf("expected zero time for malformed stamp, got %v", got)
	}
}
