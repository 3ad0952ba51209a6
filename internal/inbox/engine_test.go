package inbox

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func querySource() Source {
	return Source{ID: "src-1", Name: "team reviews", Kind: SourceKindQuery, Query: "review-requested:@me", Enabled: true}
}

func discovered(owner, repo string, number int, title, sha string) DiscoveredPR {
	return DiscoveredPR{Owner: owner, Repo: repo, Number: number, Title: title, HeadSHA: sha, Author: "alice", URL: "https://example.com"}
}

func TestUpsertAddsNewPRToInbox(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "fix races", "sha1")}, querySource(), t0)

	if len(state.PRs) != 1 {
		t.Fatalf("expected 1 PR, got %d", len(state.PRs))
	}
	pr := state.PRs[0]
	if pr.ID != "acme/api#7" {
		t.Fatalf("unexpected id %q", pr.ID)
	}
	if pr.Column != ColumnInbox {
		t.Fatalf("expected inbox column, got %q", pr.Column)
	}
	if pr.SourceID != "src-1" || pr.Source != SourceKindQuery {
		t.Fatalf("source attribution wrong: %q/%q", pr.SourceID, pr.Source)
	}
	if !pr.AddedAt.Equal(t0) || !pr.LastCheckedAt.Equal(t0) {
		t.Fatalf("expected addedAt and lastCheckedAt to both be %v", t0)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	state := NewState()
	batch := []DiscoveredPR{discovered("acme", "api", 7, "fix races", "sha1")}
	Upsert(state, batch, querySource(), t0)

	state.PRs[0].Column = ColumnReviewed
	stamp := t0.Add(time.Minute)
	state.PRs[0].ReviewedAt = &stamp

	later := t0.Add(10 * time.Minute)
	Upsert(state, batch, querySource(), later)

	if len(state.PRs) != 1 {
		t.Fatalf("rediscovery duplicated the PR: %d entries", len(state.PRs))
	}
	pr := state.PRs[0]
	if pr.Column != ColumnReviewed {
		t.Fatalf("rediscovery clobbered column: %q", pr.Column)
	}
	if pr.ReviewedAt == nil || !pr.ReviewedAt.Equal(stamp) {
		t.Fatalf("rediscovery clobbered reviewedAt")
	}
	if !pr.AddedAt.Equal(t0) {
		t.Fatalf("rediscovery clobbered addedAt")
	}
	if !pr.LastCheckedAt.Equal(later) {
		t.Fatalf("expected lastCheckedAt refresh to %v, got %v", later, pr.LastCheckedAt)
	}
}

func TestUpsertRefreshesTitleAndSHA(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "old title", "sha1")}, querySource(), t0)
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "new title", "sha2")}, querySource(), t0.Add(time.Minute))

	pr := state.PRs[0]
	if pr.Title != "new title" {
		t.Fatalf("title not refreshed: %q", pr.Title)
	}
	if pr.HeadSHA != "sha2" {
		t.Fatalf("head sha not refreshed: %q", pr.HeadSHA)
	}
}

func TestUpsertKeepsSHAWhenDiscoveryLacksOne(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "")}, querySource(), t0.Add(time.Minute))

	if got := state.PRs[0].HeadSHA; got != "sha1" {
		t.Fatalf("empty discovery sha overwrote stored sha: %q", got)
	}
}

func TestUpsertSuppressesIgnoredPR(t *testing.T) {
	state := NewState()
	state.IgnoredPRIDs["acme/api#7"] = t0.Add(-time.Hour)

	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)
	if len(state.PRs) != 0 {
		t.Fatalf("ignored PR resurfaced")
	}
}

func TestUpsertReaddsPRAfterIgnoreExpiry(t *testing.T) {
	state := NewState()
	state.IgnoredPRIDs["acme/api#7"] = t0.Add(-IgnoreRetention - time.Hour)

	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)
	if len(state.PRs) != 1 {
		t.Fatalf("expired ignore entry still suppresses discovery")
	}
}

func TestIgnoreRemovesAndRecords(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)

	if !Ignore(state, "acme/api#7", t0) {
		t.Fatalf("expected Ignore to report the PR as found")
	}
	if len(state.PRs) != 0 {
		t.Fatalf("ignored PR still active")
	}
	if at, ok := state.IgnoredPRIDs["acme/api#7"]; !ok || !at.Equal(t0) {
		t.Fatalf("ignore ledger entry missing or mistimed")
	}
}

func TestIgnoreUntrackedPRStillRecordsEntry(t *testing.T) {
	state := NewState()
	if Ignore(state, "acme/api#99", t0) {
		t.Fatalf("expected not-found result")
	}
	if _, ok := state.IgnoredPRIDs["acme/api#99"]; !ok {
		t.Fatalf("ignore ledger entry missing")
	}
}

func TestRemoveSourceCascades(t *testing.T) {
	state := NewState()
	src := querySource()
	other := Source{ID: "src-2", Name: "other", Kind: SourceKindQuery, Query: "org:acme", Enabled: true}
	state.Sources = []Source{src, other}

	Upsert(state, []DiscoveredPR{discovered("acme", "api", 1, "a", "s1")}, src, t0)
	Upsert(state, []DiscoveredPR{discovered("acme", "web", 2, "b", "s2")}, other, t0)

	if !RemoveSource(state, "src-1") {
		t.Fatalf("expected source removal")
	}
	if len(state.Sources) != 1 || state.Sources[0].ID != "src-2" {
		t.Fatalf("registry not updated: %+v", state.Sources)
	}
	if len(state.PRs) != 1 || state.PRs[0].SourceID != "src-2" {
		t.Fatalf("cascade failed: %+v", state.PRs)
	}
}

func TestRemoveUnknownSource(t *testing.T) {
	state := NewState()
	if RemoveSource(state, "nope") {
		t.Fatalf("expected false for unknown source")
	}
}

func TestMovePRStampsTimestamps(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "s")}, querySource(), t0)

	if err := MovePR(state, "acme/api#7", ColumnReviewed, t0.Add(time.Hour)); err != nil {
		t.Fatalf("move to reviewed: %v", err)
	}
	pr := state.FindPR("acme/api#7")
	if pr.ReviewedAt == nil {
		t.Fatalf("reviewedAt not stamped")
	}

	if err := MovePR(state, "acme/api#7", ColumnDone, t0.Add(2*time.Hour)); err != nil {
		t.Fatalf("move to done: %v", err)
	}
	if pr.DoneAt == nil {
		t.Fatalf("doneAt not stamped")
	}
}

func TestMovePRDoneIsTerminal(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "s")}, querySource(), t0)
	if err := MovePR(state, "acme/api#7", ColumnDone, t0); err != nil {
		t.Fatalf("move to done: %v", err)
	}
	if err := MovePR(state, "acme/api#7", ColumnInbox, t0); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput leaving done, got %v", err)
	}
}

func TestMovePRValidation(t *testing.T) {
	state := NewState()
	if err := MovePR(state, "acme/api#7", Column("limbo"), t0); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput for bogus column, got %v", err)
	}
	if err := MovePR(state, "acme/api#7", ColumnReviewed, t0); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddManualPR(t *testing.T) {
	state := NewState()
	state.IgnoredPRIDs["acme/api#7"] = t0.Add(-time.Hour)

	pr, err := AddManualPR(state, "acme", "api", 7, t0)
	if err != nil {
		t.Fatalf("add manual: %v", err)
	}
	if pr.HeadSHA != "" {
		t.Fatalf("manual PR should start without a head sha")
	}
	if pr.Source != SourceKindManual {
		t.Fatalf("unexpected source kind %q", pr.Source)
	}
	if _, ok := state.IgnoredPRIDs["acme/api#7"]; ok {
		t.Fatalf("manual add should clear the ignore entry")
	}

	if _, err := AddManualPR(state, "acme", "api", 7, t0); err != ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if _, err := AddManualPR(state, "", "api", 7, t0); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestApplyStatusMergedWinsFromAnyColumn(t *testing.T) {
	for _, col := range []Column{ColumnInbox, ColumnNeedsAttention, ColumnReviewed} {
		state := NewState()
		Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)
		state.PRs[0].Column = col

		ApplyStatus(state, "acme/api#7", StatusResult{HeadSHA: "sha9", State: PRStateMerged}, t0.Add(time.Hour))

		pr := state.FindPR("acme/api#7")
		if pr.Column != ColumnDone {
			t.Fatalf("merged PR in %q not moved to done", col)
		}
		if pr.DoneAt == nil {
			t.Fatalf("doneAt not stamped")
		}
	}
}

func TestApplyStatusSHAChangeOnReviewed(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)
	state.PRs[0].Column = ColumnReviewed

	ApplyStatus(state, "acme/api#7", StatusResult{HeadSHA: "sha2", State: PRStateOpen}, t0.Add(time.Hour))

	pr := state.FindPR("acme/api#7")
	if pr.Column != ColumnNeedsAttention {
		t.Fatalf("new commits on reviewed PR should move it to needs-attention, got %q", pr.Column)
	}
	if pr.HeadSHA != "sha2" {
		t.Fatalf("stored sha not updated: %q", pr.HeadSHA)
	}
}

func TestApplyStatusSHAChangeElsewhereDoesNotMove(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)

	ApplyStatus(state, "acme/api#7", StatusResult{HeadSHA: "sha2", State: PRStateOpen}, t0.Add(time.Hour))

	pr := state.FindPR("acme/api#7")
	if pr.Column != ColumnInbox {
		t.Fatalf("inbox PR moved on sha change: %q", pr.Column)
	}
	if pr.HeadSHA != "sha2" {
		t.Fatalf("sha should still be recorded, got %q", pr.HeadSHA)
	}
}

func TestApplyStatusEmptyStoredSHANotDiffed(t *testing.T) {
	state := NewState()
	if _, err := AddManualPR(state, "acme", "api", 7, t0); err != nil {
		t.Fatalf("add manual: %v", err)
	}
	pr := state.FindPR("acme/api#7")
	pr.Column = ColumnReviewed

	ApplyStatus(state, "acme/api#7", StatusResult{HeadSHA: "sha1", State: PRStateOpen}, t0.Add(time.Hour))

	if pr.Column != ColumnReviewed {
		t.Fatalf("first sha observation should not flag a reviewed PR, got %q", pr.Column)
	}
	if pr.HeadSHA != "sha1" {
		t.Fatalf("first sha observation should be stored, got %q", pr.HeadSHA)
	}
}

func TestApplyStatusDoneIsUntouched(t *testing.T) {
	state := NewState()
	Upsert(state, []DiscoveredPR{discovered("acme", "api", 7, "t", "sha1")}, querySource(), t0)
	if err := MovePR(state, "acme/api#7", ColumnDone, t0); err != nil {
		t.Fatalf("move: %v", err)
	}

	ApplyStatus(state, "acme/api#7", StatusResult{HeadSHA: "sha2", State: PRStateOpen}, t0.Add(time.Hour))

	pr := state.FindPR("acme/api#7")
	if pr.Column != ColumnDone || pr.HeadSHA != "sha1" {
		t.Fatalf("done PR mutated by status observation: %+v", pr)
	}
}

func TestSweepRetention(t *testing.T) {
	state := NewState()
	fresh := t0.Add(-23 * time.Hour)
	stale := t0.Add(-25 * time.Hour)
	state.PRs = []PR{
		{ID: "a/b#1", Column: ColumnDone, DoneAt: &fresh},
		{ID: "a/b#2", Column: ColumnDone, DoneAt: &stale},
		{ID: "a/b#3", Column: ColumnInbox},
	}
	state.IgnoredPRIDs["a/b#4"] = t0.Add(-6 * 24 * time.Hour)
	state.IgnoredPRIDs["a/b#5"] = t0.Add(-8 * 24 * time.Hour)

	prsDropped, ignoresDropped := Sweep(state, t0)
	if prsDropped != 1 || ignoresDropped != 1 {
		t.Fatalf("dropped %d/%d, expected 1/1", prsDropped, ignoresDropped)
	}
	if state.FindPR("a/b#2") != nil {
		t.Fatalf("stale done PR survived sweep")
	}
	if state.FindPR("a/b#1") == nil || state.FindPR("a/b#3") == nil {
		t.Fatalf("sweep dropped records inside retention")
	}
	if _, ok := state.IgnoredPRIDs["a/b#5"]; ok {
		t.Fatalf("stale ignore entry survived sweep")
	}
	if _, ok := state.IgnoredPRIDs["a/b#4"]; !ok {
		t.Fatalf("live ignore entry dropped")
	}
}

func TestParsePRID(t *testing.T) {
	owner, repo, number, err := ParsePRID("acme/api#42")
	if err != nil || owner != "acme" || repo != "api" || number != 42 {
		t.Fatalf("parse failed: %q %q %d %v", owner, repo, number, err)
	}
	for _, bad := range []string{"", "acme/api", "acme#42", "acme/api#zero", "acme/api#-1"} {
		if _, _, _, err := ParsePRID(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
