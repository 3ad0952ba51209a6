package inbox

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAlreadyExists = errors.New("already exists")
)

// Upsert folds a batch of discovered PRs from one source into the document.
//
// Rediscovery of a tracked PR refreshes upstream-owned fields (title, head
// SHA, last-checked stamp) and preserves reconciliation-owned ones (column,
// addedAt, reviewedAt, doneAt). Unknown PRs are appended in the inbox column
// unless a live ignore entry suppresses them. Running the same batch twice
// against the same document is a no-op on the second run, modulo the
// lastCheckedAt refresh.
func Upsert(state *State, discovered []DiscoveredPR, src Source, now time.Time) {
	for _, d := range discovered {
		id := d.ID()
		if existing := state.FindPR(id); existing != nil {
			existing.Title = d.Title
			if d.HeadSHA != "" {
				existing.HeadSHA = d.HeadSHA
			}
			existing.LastCheckedAt = now
			continue
		}
		if IsIgnored(state, id, now) {
			continue
		}
		state.PRs = append(state.PRs, PR{
			ID:            id,
			Owner:         d.Owner,
			Repo:          d.Repo,
			Number:        d.Number,
			Title:         d.Title,
			Author:        d.Author,
			URL:           d.URL,
			HeadSHA:       d.HeadSHA,
			Column:        ColumnInbox,
			Source:        src.Kind,
			SourceID:      src.ID,
			AddedAt:       now,
			LastCheckedAt: now,
		})
	}
}

// IsIgnored reports whether id has a live (non-expired) ignore entry.
func IsIgnored(state *State, id string, now time.Time) bool {
	at, ok := state.IgnoredPRIDs[id]
	if !ok {
		return false
	}
	return now.Sub(at) < IgnoreRetention
}

// Ignore removes the PR from the active list and records it in the ignore
// ledger. Both edits land in the same document so the pair persists
// atomically. Returns false when the PR is not tracked.
func Ignore(state *State, prID string, now time.Time) bool {
	found := false
	kept := state.PRs[:0]
	for _, pr := range state.PRs {
		if pr.ID == prID {
			found = true
			continue
		}
		kept = append(kept, pr)
	}
	state.PRs = kept
	state.IgnoredPRIDs[prID] = now
	return found
}

// RemoveSource strips the source from the registry and cascades: every PR
// whose sourceId matches is dropped from the active set.
func RemoveSource(state *State, sourceID string) bool {
	found := false
	sources := state.Sources[:0]
	for _, src := range state.Sources {
		if src.ID == sourceID {
			found = true
			continue
		}
		sources = append(sources, src)
	}
	state.Sources = sources
	if !found {
		return false
	}
	prs := state.PRs[:0]
	for _, pr := range state.PRs {
		if pr.SourceID == sourceID {
			continue
		}
		prs = append(prs, pr)
	}
	state.PRs = prs
	return true
}

// MovePR applies a user-initiated column move. done is terminal: once there
// a PR only leaves via the retention sweep. Entering reviewed or done stamps
// the corresponding timestamp.
func MovePR(state *State, prID string, column Column, now time.Time) error {
	if !ValidColumn(column) {
		return ErrInvalidInput
	}
	pr := state.FindPR(prID)
	if pr == nil {
		return ErrNotFound
	}
	if pr.Column == ColumnDone && column != ColumnDone {
		return ErrInvalidInput
	}
	pr.Column = column
	switch column {
	case ColumnReviewed:
		stamp := now
		pr.ReviewedAt = &stamp
	case ColumnDone:
		stamp := now
		pr.DoneAt = &stamp
	}
	return nil
}

// AddManualPR tracks a PR added out of band. Its head SHA starts empty and
// is not diffed against until the status pass first populates it.
func AddManualPR(state *State, owner, repo string, number int, now time.Time) (*PR, error) {
	if owner == "" || repo == "" || number <= 0 {
		return nil, ErrInvalidInput
	}
	id := PRID(owner, repo, number)
	if state.FindPR(id) != nil {
		return nil, ErrAlreadyExists
	}
	delete(state.IgnoredPRIDs, id)
	state.PRs = append(state.PRs, PR{
		ID:            id,
		Owner:         owner,
		Repo:          repo,
		Number:        number,
		Title:         id,
		URL:           "",
		Column:        ColumnInbox,
		Source:        SourceKindManual,
		AddedAt:       now,
		LastCheckedAt: now,
	})
	return state.FindPR(id), nil
}

// StatusResult is one status-check observation for a tracked PR.
type StatusResult struct {
	HeadSHA string
	State   PRState
}

// ApplyStatus folds a status observation into the PR identified by prID.
//
// merged/closed wins over everything and parks the PR in done. A head SHA
// change on a reviewed PR moves it to needs-attention; no other column
// reacts to SHA drift. The stored SHA is only diffed and overwritten when it
// was non-empty, so manually added PRs with a placeholder SHA are not
// flagged on first contact.
func ApplyStatus(state *State, prID string, result StatusResult, now time.Time) {
	pr := state.FindPR(prID)
	if pr == nil || pr.Column == ColumnDone {
		return
	}
	if result.State == PRStateMerged || result.State == PRStateClosed {
		pr.Column = ColumnDone
		stamp := now
		pr.DoneAt = &stamp
		if result.HeadSHA != "" {
			pr.HeadSHA = result.HeadSHA
		}
		pr.LastCheckedAt = now
		return
	}
	changed := result.HeadSHA != "" && pr.HeadSHA != "" && result.HeadSHA != pr.HeadSHA
	if changed && pr.Column == ColumnReviewed {
		pr.Column = ColumnNeedsAttention
	}
	if result.HeadSHA != "" && (pr.HeadSHA == "" || changed) {
		pr.HeadSHA = result.HeadSHA
	}
	pr.LastCheckedAt = now
}
