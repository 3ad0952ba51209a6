package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prdeck/prdeck/internal/inbox"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func TestUpdatePersistsAndReturnsCopy(t *testing.T) {
	st := New(Options{Now: fixedNow})

	snapshot, err := st.Update(func(state *inbox.State) error {
		state.Sources = append(state.Sources, inbox.Source{
			ID: "s1", Name: "team", Kind: inbox.SourceKindQuery, Query: "org:acme", Enabled: true,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	// mutating the returned snapshot must not leak into the store
	snapshot.Sources[0].Name = "tampered"

	reloaded, err := st.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(reloaded.Sources) != 1 || reloaded.Sources[0].Name != "team" {
		t.Fatalf("persisted document wrong: %+v", reloaded.Sources)
	}
}

func TestUpdateAbortsWithoutSaving(t *testing.T) {
	st := New(Options{Now: fixedNow})
	boom := errors.New("boom")

	_, err := st.Update(func(state *inbox.State) error {
		state.PRs = append(state.PRs, inbox.PR{ID: "a/b#1", Column: inbox.ColumnInbox})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	snapshot, err := st.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot.PRs) != 0 {
		t.Fatalf("aborted update leaked into the document")
	}
}

type failingSaveBackend struct {
	inner Backend
}

func (b *failingSaveBackend) Load() (*inbox.State, error) { return b.inner.Load() }
func (b *failingSaveBackend) Save(*inbox.State) error     { return errors.New("disk full") }

func TestUpdateSurfacesSaveFailure(t *testing.T) {
	st := New(Options{Backend: &failingSaveBackend{inner: NewMemoryBackend()}, Now: fixedNow})
	_, err := st.Update(func(state *inbox.State) error { return nil })
	if err == nil {
		t.Fatalf("expected save failure to surface")
	}
}

func TestLoadRunsRetentionSweep(t *testing.T) {
	backend := NewMemoryBackend()
	stale := testNow.Add(-25 * time.Hour)
	seed := inbox.NewState()
	seed.PRs = []inbox.PR{
		{ID: "a/b#1", Column: inbox.ColumnDone, DoneAt: &stale},
		{ID: "a/b#2", Column: inbox.ColumnInbox},
	}
	seed.IgnoredPRIDs["a/b#3"] = testNow.Add(-8 * 24 * time.Hour)
	if err := backend.Save(seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	st := New(Options{Backend: backend, Now: fixedNow})
	snapshot, err := st.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.FindPR("a/b#1") != nil {
		t.Fatalf("stale done PR survived load sweep")
	}
	if snapshot.FindPR("a/b#2") == nil {
		t.Fatalf("live PR dropped by load sweep")
	}
	if len(snapshot.IgnoredPRIDs) != 0 {
		t.Fatalf("stale ignore entry survived load sweep")
	}
}

func TestJSONFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	backend := NewJSONFileBackend(path)

	if state, err := backend.Load(); err != nil || state != nil {
		t.Fatalf("expected (nil, nil) before first save, got (%v, %v)", state, err)
	}

	seed := inbox.NewState()
	seed.PRs = []inbox.PR{{
		ID: "acme/api#7", Owner: "acme", Repo: "api", Number: 7,
		Column: inbox.ColumnInbox, Source: inbox.SourceKindQuery, SourceID: "s1",
		AddedAt: testNow, LastCheckedAt: testNow,
	}}
	if err := backend.Save(seed); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.PRs) != 1 || loaded.PRs[0].ID != "acme/api#7" {
		t.Fatalf("round trip lost data: %+v", loaded.PRs)
	}
}

func TestJSONFileBackendRejectsInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	// column value outside the schema enum
	bad := `{"prs":[{"id":"a/b#1","owner":"a","repo":"b","number":1,"column":"limbo","sourceId":"s1"}],"sources":[]}`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewJSONFileBackend(path).Load(); err == nil {
		t.Fatalf("expected schema validation failure")
	}
}

func TestBuildBackendFromDSN(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		dsn  string
		want string
	}{
		{"", "nil"},
		{filepath.Join(dir, "bare.json"), "file"},
		{"file:" + filepath.Join(dir, "opaque.json"), "file"},
		{"memory:", "memory"},
		{"mem:", "memory"},
	}
	for _, tc := range cases {
		backend, err := BuildBackendFromDSN(tc.dsn)
		if err != nil {
			t.Fatalf("dsn %q: %v", tc.dsn, err)
		}
		switch tc.want {
		case "nil":
			if backend != nil {
				t.Fatalf("dsn %q: expected nil backend", tc.dsn)
			}
		case "file":
			if _, ok := backend.(*JSONFileBackend); !ok {
				t.Fatalf("dsn %q: expected file backend, got %T", tc.dsn, backend)
			}
		case "memory":
			if _, ok := backend.(*MemoryBackend); !ok {
				t.Fatalf("dsn %q: expected memory backend, got %T", tc.dsn, backend)
			}
		}
	}

	if _, err := BuildBackendFromDSN("mysql://u:p@host/db"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented for mysql, got %v", err)
	}
	if _, err := BuildBackendFromDSN("carrier-pigeon://coop"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}

func TestRegisteredFactoryWins(t *testing.T) {
	called := false
	RegisterBackendFactory("testscheme", func(dsn string) (Backend, error) {
		called = true
		return NewMemoryBackend(), nil
	})
	backend, err := BuildBackendFromDSN("testscheme://anything")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !called {
		t.Fatalf("registered factory not invoked")
	}
	if _, ok := backend.(*MemoryBackend); !ok {
		t.Fatalf("factory result ignored: %T", backend)
	}
}
