// Package poller owns the polling cadence: one recurring cycle that fans
// out to source adapters and the status checker, with overlap prevention and
// rate-limit backoff.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/prdeck/prdeck/internal/inbox"
	"github.com/prdeck/prdeck/internal/source"
	"github.com/prdeck/prdeck/internal/store"
)

// ErrCycleInFlight is returned to a manual trigger that arrives while a
// cycle is already running. The trigger still resets rate-limit backoff.
var ErrCycleInFlight = errors.New("poll cycle already in flight")

const (
	// minInterval floors the configured cadence so a misconfigured interval
	// cannot hammer upstream services.
	minInterval = time.Minute
	backoffBase = time.Minute
	backoffMax  = 30 * time.Minute
)

// Options configures a Poller.
type Options struct {
	Store    *store.Store
	Adapters source.Registry
	Status   StatusClient
	Logger   *zap.SugaredLogger
	// Interval is the default cadence; a positive pollIntervalMs in the
	// persisted document overrides it.
	Interval time.Duration
	// StatusConcurrency bounds simultaneous status lookups. Defaults to 5.
	StatusConcurrency int
	Now               func() time.Time

	// OnState receives a snapshot after every completed cycle.
	OnState func(*inbox.State)
	// OnSoftErrors receives the per-source and per-PR failures collected
	// during a cycle, and backoff-skip notices.
	OnSoftErrors func([]string)
}

// Poller drives poll cycles. All scheduler state (busy flag, backoff
// deadline) lives on the instance so independent pollers can coexist.
type Poller struct {
	store       *store.Store
	adapters    source.Registry
	status      StatusClient
	log         *zap.SugaredLogger
	interval    time.Duration
	concurrency int
	now         func() time.Time

	onState      func(*inbox.State)
	onSoftErrors func([]string)

	mu           sync.Mutex
	busy         bool
	backoffUntil time.Time
	backoffStep  time.Duration
}

func New(opts Options) *Poller {
	interval := opts.Interval
	if interval < minInterval {
		interval = minInterval
	}
	concurrency := opts.StatusConcurrency
	if concurrency <= 0 {
		concurrency = 5
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		store:        opts.Store,
		adapters:     opts.Adapters,
		status:       opts.Status,
		log:          opts.Logger,
		interval:     interval,
		concurrency:  concurrency,
		now:          now,
		onState:      opts.OnState,
		onSoftErrors: opts.OnSoftErrors,
	}
}

// Run drives automatic cycles until ctx is cancelled. It blocks.
func (p *Poller) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(p.currentInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.runCycle(ctx, false)
		}
	}
}

// TriggerNow runs a manual cycle. It always clears rate-limit backoff; if a
// cycle is already in flight it returns ErrCycleInFlight without starting
// another.
func (p *Poller) TriggerNow(ctx context.Context) error {
	return p.runCycle(ctx, true)
}

func (p *Poller) currentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

func (p *Poller) setIntervalFromState(state *inbox.State) {
	if state == nil || state.PollIntervalMs <= 0 {
		return
	}
	interval := time.Duration(state.PollIntervalMs) * time.Millisecond
	if interval < minInterval {
		interval = minInterval
	}
	p.mu.Lock()
	p.interval = interval
	p.mu.Unlock()
}

// acquire claims the busy flag. Manual triggers reset backoff before the
// busy check so user intent overrides automated caution even when the
// trigger itself is refused.
func (p *Poller) acquire(manual bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if manual {
		p.backoffUntil = time.Time{}
		p.backoffStep = 0
	}
	if p.busy {
		return ErrCycleInFlight
	}
	if !manual && p.now().Before(p.backoffUntil) {
		return fmt.Errorf("still backing off until %s", p.backoffUntil.Format(time.RFC3339))
	}
	p.busy = true
	return nil
}

func (p *Poller) release() {
	p.mu.Lock()
	p.busy = false
	p.mu.Unlock()
}

// extendBackoff doubles the backoff step from a 1-minute base, capped at 30
// minutes, and moves the absolute deadline out accordingly.
func (p *Poller) extendBackoff() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backoffStep <= 0 {
		p.backoffStep = backoffBase
	} else {
		p.backoffStep *= 2
		if p.backoffStep > backoffMax {
			p.backoffStep = backoffMax
		}
	}
	p.backoffUntil = p.now().Add(p.backoffStep)
	if p.log != nil {
		p.log.Warnw("rate limit detected, backing off", "until", p.backoffUntil, "step", p.backoffStep)
	}
}

// BackoffUntil exposes the current backoff deadline, zero when inactive.
func (p *Poller) BackoffUntil() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backoffUntil
}

func (p *Poller) runCycle(ctx context.Context, manual bool) error {
	if err := p.acquire(manual); err != nil {
		if errors.Is(err, ErrCycleInFlight) {
			return err
		}
		// Automatic cycle skipped inside the backoff window.
		p.notifySoftErrors([]string{err.Error()})
		return nil
	}
	defer p.release()
	defer func() {
		// A panic escaping a cycle must not kill the scheduler or leave the
		// busy flag stuck.
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Errorw("poll cycle panicked", "panic", r)
			}
			p.notifySoftErrors([]string{fmt.Sprintf("poll cycle panicked: %v", r)})
		}
	}()

	var soft []string
	rateLimited := false
	snapshot, err := p.store.Update(func(state *inbox.State) error {
		enabled := make([]inbox.Source, 0, len(state.Sources))
		for _, src := range state.Sources {
			if src.Enabled {
				enabled = append(enabled, src)
			}
		}
		if len(enabled) > 0 {
			for _, src := range enabled {
				adapter, adapterErr := p.adapters.For(src)
				if adapterErr != nil {
					soft = append(soft, fmt.Sprintf("source %s: %v", src.Name, adapterErr))
					continue
				}
				discovered, fetchErr := adapter.Fetch(ctx, src, sinceHint(state, src))
				if fetchErr != nil {
					if source.IsRateLimit(fetchErr) {
						rateLimited = true
					}
					soft = append(soft, fmt.Sprintf("source %s: %v", src.Name, fetchErr))
					continue
				}
				inbox.Upsert(state, discovered, src, p.now())
			}
			for _, checkErr := range CheckStatuses(ctx, p.status, state, p.concurrency, p.log, p.now) {
				if source.IsRateLimit(checkErr) {
					rateLimited = true
				}
				soft = append(soft, checkErr.Error())
			}
		}
		stamp := p.now()
		state.LastPollAt = &stamp
		return nil
	})
	if err != nil {
		// Cycle-fatal: persistence or the fold itself failed. The scheduler
		// survives and retries on the next tick.
		if p.log != nil {
			p.log.Errorw("poll cycle failed", "error", err)
		}
		p.notifySoftErrors([]string{fmt.Sprintf("poll cycle failed: %v", err)})
		return nil
	}
	if rateLimited && !manual {
		p.extendBackoff()
	}
	p.setIntervalFromState(snapshot)
	p.notifyState(snapshot)
	if len(soft) > 0 {
		p.notifySoftErrors(soft)
	}
	return nil
}

// sinceHint returns nil on a source's first-ever poll, detected by the
// absence of any tracked PR from that source instance. Otherwise the
// previous poll stamp bounds the incremental fetch.
func sinceHint(state *inbox.State, src inbox.Source) *time.Time {
	if !state.HasPRFromSource(src.ID) {
		return nil
	}
	return state.LastPollAt
}

func (p *Poller) notifyState(state *inbox.State) {
	if p.onState != nil && state != nil {
		p.onState(state)
	}
}

func (p *Poller) notifySoftErrors(errs []string) {
	if p.onSoftErrors != nil && len(errs) > 0 {
		p.onSoftErrors(errs)
	}
}
