// Package source translates source-specific fetches into the common
// DiscoveredPR shape consumed by the reconciliation engine.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prdeck/prdeck/internal/inbox"
)

// ErrRateLimited marks upstream responses that should trigger poll backoff
// rather than being dropped as ordinary soft errors.
var ErrRateLimited = errors.New("rate limited")

// HTTPError is a non-2xx upstream response. A 429 or 403 matches
// ErrRateLimited through errors.Is.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *HTTPError) Is(target error) bool {
	if target == ErrRateLimited {
		return e.StatusCode == 429 || e.StatusCode == 403
	}
	return false
}

// IsRateLimit classifies an adapter or status-check failure as a rate-limit
// signal. Besides the sentinel it recognizes explicit "rate limit" wording
// from upstreams that return it in message bodies.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "ratelimited")
}

// Adapter fetches candidate PRs for one configured source. sinceHint is nil
// on the source's first-ever poll; otherwise it carries the previous poll
// stamp so message-scraping adapters can fetch incrementally.
type Adapter interface {
	Kind() inbox.SourceKind
	Fetch(ctx context.Context, src inbox.Source, sinceHint *time.Time) ([]inbox.DiscoveredPR, error)
}

// Registry maps source kinds to their adapters. Dispatch is by the source's
// kind tag, never by runtime type inspection of the source itself.
type Registry map[inbox.SourceKind]Adapter

// NewRegistry indexes adapters by kind, skipping nils.
func NewRegistry(adapters ...Adapter) Registry {
	reg := Registry{}
	for _, a := range adapters {
		if a == nil || a.Kind() == "" {
			continue
		}
		reg[a.Kind()] = a
	}
	return reg
}

// For returns the adapter handling the source's kind.
func (r Registry) For(src inbox.Source) (Adapter, error) {
	a, ok := r[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no adapter for source kind %q", src.Kind)
	}
	return a, nil
}
