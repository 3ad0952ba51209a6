package inbox

import "time"

// Retention windows applied on every load, before the document reaches any
// other component.
const (
	DoneRetention   = 24 * time.Hour
	IgnoreRetention = 7 * 24 * time.Hour
)

// Sweep prunes terminal-state records past their retention window: done PRs
// older than 24h and ignore-ledger entries older than 7 days. Returns the
// number of PRs and ledger entries dropped.
func Sweep(state *State, now time.Time) (prsDropped, ignoresDropped int) {
	kept := state.PRs[:0]
	for _, pr := range state.PRs {
		if pr.Column == ColumnDone && pr.DoneAt != nil && now.Sub(*pr.DoneAt) > DoneRetention {
			prsDropped++
			continue
		}
		kept = append(kept, pr)
	}
	state.PRs = kept
	for id, at := range state.IgnoredPRIDs {
		if now.Sub(at) > IgnoreRetention {
			delete(state.IgnoredPRIDs, id)
			ignoresDropped++
		}
	}
	return prsDropped, ignoresDropped
}
