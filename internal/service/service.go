// Package service is the command surface the UI layer talks to: state
// snapshots, source CRUD, ignore/move/add commands, manual poll triggers,
// and push-style update events.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prdeck/prdeck/internal/inbox"
	"github.com/prdeck/prdeck/internal/poller"
	"github.com/prdeck/prdeck/internal/store"
)

// Service coordinates the store, the poll scheduler, and event delivery.
// Every user command is a read-modify-write-persist transaction on the
// single inbox document; nothing is observable unless the persist succeeded.
type Service struct {
	store  *store.Store
	poller *poller.Poller
	log    *zap.SugaredLogger
	now    func() time.Time
	events *broadcaster

	// lastSaveUnixNano lets the state-file watcher tell our own writes from
	// external ones.
	lastSaveUnixNano atomic.Int64
}

type Options struct {
	Store  *store.Store
	Logger *zap.SugaredLogger
	Now    func() time.Time
}

func New(opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:  opts.Store,
		log:    opts.Logger,
		now:    now,
		events: newBroadcaster(),
	}
}

// AttachPoller wires the scheduler whose manual trigger TriggerPollNow
// proxies. The poller should be constructed with PublishState /
// PublishSoftErrors as its callbacks.
func (s *Service) AttachPoller(p *poller.Poller) {
	s.poller = p
}

// Subscribe registers a push-notification consumer.
func (s *Service) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// PublishState broadcasts a state-updated event with the given snapshot.
func (s *Service) PublishState(state *inbox.State) {
	s.markSaved()
	s.events.publish(Event{Type: EventStateUpdated, State: state})
}

// PublishSoftErrors broadcasts a soft-error event.
func (s *Service) PublishSoftErrors(errs []string) {
	s.events.publish(Event{Type: EventSoftError, Errors: errs})
}

// Snapshot returns the current swept document.
func (s *Service) Snapshot() (*inbox.State, error) {
	return s.store.Snapshot()
}

// TriggerPollNow runs a manual poll cycle, clearing rate-limit backoff.
func (s *Service) TriggerPollNow(ctx context.Context) error {
	if s.poller == nil {
		return fmt.Errorf("no poller attached")
	}
	return s.poller.TriggerNow(ctx)
}

// ReplaceState overwrites the whole document. Exists for the UI layer's
// coarse-grained save path; prefer the targeted commands below.
func (s *Service) ReplaceState(state *inbox.State) (*inbox.State, error) {
	if state == nil {
		return nil, inbox.ErrInvalidInput
	}
	return s.mutate(func(current *inbox.State) error {
		*current = *state.Clone()
		current.Normalize()
		return nil
	})
}

// AddSource validates and registers a source, assigning an id when absent.
func (s *Service) AddSource(src inbox.Source) (inbox.Source, error) {
	if err := validateSource(&src); err != nil {
		return inbox.Source{}, err
	}
	if strings.TrimSpace(src.ID) == "" {
		src.ID = uuid.NewString()
	}
	_, err := s.mutate(func(state *inbox.State) error {
		if state.FindSource(src.ID) != nil {
			return inbox.ErrAlreadyExists
		}
		state.Sources = append(state.Sources, src)
		return nil
	})
	if err != nil {
		return inbox.Source{}, err
	}
	return src, nil
}

// SourcePatch carries partial updates for UpdateSource. Nil fields are left
// untouched.
type SourcePatch struct {
	Name        *string `json:"name,omitempty"`
	Query       *string `json:"query,omitempty"`
	ChannelName *string `json:"channelName,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// UpdateSource applies a patch to an existing source.
func (s *Service) UpdateSource(id string, patch SourcePatch) (*inbox.State, error) {
	return s.mutate(func(state *inbox.State) error {
		src := state.FindSource(id)
		if src == nil {
			return inbox.ErrNotFound
		}
		if patch.Name != nil {
			src.Name = *patch.Name
		}
		if patch.Query != nil {
			src.Query = *patch.Query
		}
		if patch.ChannelName != nil {
			src.ChannelName = *patch.ChannelName
		}
		if patch.Enabled != nil {
			src.Enabled = *patch.Enabled
		}
		return validateSource(src)
	})
}

// RemoveSource deletes a source and cascades to every PR it discovered.
func (s *Service) RemoveSource(id string) (*inbox.State, error) {
	return s.mutate(func(state *inbox.State) error {
		if !inbox.RemoveSource(state, id) {
			return inbox.ErrNotFound
		}
		return nil
	})
}

// IgnorePR dismisses a PR and records it in the ignore ledger. Removal and
// ledger write land in one persisted document, so a crash cannot resurrect
// the PR without its suppression entry.
func (s *Service) IgnorePR(id string) (*inbox.State, error) {
	return s.mutate(func(state *inbox.State) error {
		if !inbox.Ignore(state, id, s.now()) {
			return inbox.ErrNotFound
		}
		return nil
	})
}

// MovePR applies a user column move.
func (s *Service) MovePR(id string, column inbox.Column) (*inbox.State, error) {
	return s.mutate(func(state *inbox.State) error {
		return inbox.MovePR(state, id, column, s.now())
	})
}

// AddPR tracks a manually referenced PR.
func (s *Service) AddPR(owner, repo string, number int) (*inbox.State, error) {
	return s.mutate(func(state *inbox.State) error {
		_, err := inbox.AddManualPR(state, owner, repo, number, s.now())
		return err
	})
}

// SeedSources registers bootstrap sources that are not yet present, matched
// by name. Used on startup with a sources file.
func (s *Service) SeedSources(sources []inbox.Source) error {
	if len(sources) == 0 {
		return nil
	}
	_, err := s.mutate(func(state *inbox.State) error {
		for _, src := range sources {
			exists := false
			for i := range state.Sources {
				if state.Sources[i].Name == src.Name {
					exists = true
					break
				}
			}
			if exists {
				continue
			}
			if err := validateSource(&src); err != nil {
				return fmt.Errorf("bootstrap source %q: %w", src.Name, err)
			}
			if strings.TrimSpace(src.ID) == "" {
				src.ID = uuid.NewString()
			}
			state.Sources = append(state.Sources, src)
		}
		return nil
	})
	return err
}

func (s *Service) mutate(fn func(state *inbox.State) error) (*inbox.State, error) {
	snapshot, err := s.store.Update(fn)
	if err != nil {
		return nil, err
	}
	s.PublishState(snapshot)
	return snapshot, nil
}

func (s *Service) markSaved() {
	s.lastSaveUnixNano.Store(s.now().UnixNano())
}

func validateSource(src *inbox.Source) error {
	if strings.TrimSpace(src.Name) == "" {
		return fmt.Errorf("%w: source name is required", inbox.ErrInvalidInput)
	}
	switch src.Kind {
	case inbox.SourceKindQuery:
		if strings.TrimSpace(src.Query) == "" {
			return fmt.Errorf("%w: query source needs a query", inbox.ErrInvalidInput)
		}
	case inbox.SourceKindChannel:
		if strings.TrimSpace(src.ChannelName) == "" {
			return fmt.Errorf("%w: channel source needs a channel name", inbox.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown source kind %q", inbox.ErrInvalidInput, src.Kind)
	}
	return nil
}
