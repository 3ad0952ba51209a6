package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prdeck/prdeck/internal/inbox"
)

// SearchClient is the query-based lookup capability of the hosting platform.
// The upstream service defines its own result cap.
type SearchClient interface {
	SearchPRs(ctx context.Context, query string) ([]inbox.DiscoveredPR, error)
}

// QueryAdapter resolves query-based sources through a search client.
type QueryAdapter struct {
	search SearchClient
}

func NewQueryAdapter(search SearchClient) *QueryAdapter {
	return &QueryAdapter{search: search}
}

func (a *QueryAdapter) Kind() inbox.SourceKind {
	return inbox.SourceKindQuery
}

func (a *QueryAdapter) Fetch(ctx context.Context, src inbox.Source, _ *time.Time) ([]inbox.DiscoveredPR, error) {
	query := strings.TrimSpace(src.Query)
	if query == "" {
		return nil, fmt.Errorf("source %s has an empty query", src.ID)
	}
	results, err := a.search.SearchPRs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return results, nil
}
