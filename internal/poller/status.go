package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prdeck/prdeck/internal/inbox"
)

// StatusClient queries current head commit and open/closed/merged state for
// one PR.
type StatusClient interface {
	GetStatus(ctx context.Context, owner, repo string, number int) (inbox.StatusResult, error)
}

type statusTarget struct {
	id     string
	owner  string
	repo   string
	number int
}

// CheckStatuses re-validates every non-done PR in the document. Lookups run
// with bounded concurrency; results are folded into the document
// sequentially afterwards so the shared state is never mutated from two
// goroutines. Per-PR failures are logged and returned as soft errors, never
// aborting the batch.
func CheckStatuses(ctx context.Context, client StatusClient, state *inbox.State, limit int, log *zap.SugaredLogger, now func() time.Time) []error {
	if client == nil {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}
	targets := make([]statusTarget, 0, len(state.PRs))
	for i := range state.PRs {
		pr := &state.PRs[i]
		if pr.Column == inbox.ColumnDone {
			continue
		}
		targets = append(targets, statusTarget{id: pr.ID, owner: pr.Owner, repo: pr.Repo, number: pr.Number})
	}
	if len(targets) == 0 {
		return nil
	}

	results := make([]*inbox.StatusResult, len(targets))
	errs := make([]error, len(targets))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target statusTarget) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			result, err := client.GetStatus(ctx, target.owner, target.repo, target.number)
			if err != nil {
				errs[i] = fmt.Errorf("status check %s: %w", target.id, err)
				return
			}
			results[i] = &result
		}(i, target)
	}
	wg.Wait()

	var soft []error
	for i, target := range targets {
		if errs[i] != nil {
			if log != nil {
				log.Warnw("status check failed", "pr", target.id, "error", errs[i])
			}
			soft = append(soft, errs[i])
			continue
		}
		inbox.ApplyStatus(state, target.id, *results[i], now())
	}
	return soft
}
