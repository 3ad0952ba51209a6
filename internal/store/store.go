package store

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prdeck/prdeck/internal/inbox"
)

// Store serializes all mutations of the inbox document through one mutex.
// User commands and poll cycles alike run inside Update, so a user action
// can never race a poll tick into a lost update. Every load runs the
// retention sweep before the document reaches the caller.
type Store struct {
	backend Backend
	log     *zap.SugaredLogger
	now     func() time.Time

	mu sync.Mutex
}

// Options configures a Store. Now is overridable for tests.
type Options struct {
	Backend Backend
	Logger  *zap.SugaredLogger
	Now     func() time.Time
}

func New(opts Options) *Store {
	backend := opts.Backend
	if backend == nil {
		backend = NewMemoryBackend()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend: backend,
		log:     opts.Logger,
		now:     now,
	}
}

// Snapshot returns a swept copy of the current document. The copy does not
// alias backend storage.
func (s *Store) Snapshot() (*inbox.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Update runs fn against the swept document and persists the result. If fn
// returns an error nothing is saved and the error is passed through, so
// callers get persist-then-apply semantics for free: no mutation is
// observable unless the save succeeded. The returned snapshot is a deep copy
// of the persisted document.
//
// fn may perform network calls; the mutex is held for the duration, which is
// the single-writer discipline the document relies on.
func (s *Store) Update(fn func(state *inbox.State) error) (*inbox.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return nil, err
	}
	if err := s.backend.Save(state); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}
	return state.Clone(), nil
}

func (s *Store) loadLocked() (*inbox.State, error) {
	state, err := s.backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		state = inbox.NewState()
	}
	state.Normalize()
	prs, ignores := inbox.Sweep(state, s.now())
	if (prs > 0 || ignores > 0) && s.log != nil {
		s.log.Debugw("retention sweep", "donePrsDropped", prs, "ignoresDropped", ignores)
	}
	return state, nil
}

// Close releases the backend if it holds external resources.
func (s *Store) Close() error {
	if closer, ok := s.backend.(backendCloser); ok {
		return closer.Close()
	}
	return nil
}
