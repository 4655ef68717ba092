package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-chatflow/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State holds the recent send timestamps for one tenant's sliding window.
type State struct {
	TenantID  string
	Sends     []time.Time
	UpdatedAt time.Time
}

type StateStore interface {
	Get(ctx context.Context, tenantID string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	TenantID   string
	Budget     int
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: tenant %q exceeded budget of %d sends, retry after %s",
		strings.TrimSpace(e.TenantID),
		e.Budget,
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"tenant_id": strings.TrimSpace(e.TenantID),
		"budget":    e.Budget,
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

// SlidingWindowPolicy enforces a per-tenant send budget over a rolling
// interval. Reserve both checks and records the attempt, so a successful
// call consumes one unit of budget.
type SlidingWindowPolicy struct {
	Store    StateStore
	Budget   int
	Interval time.Duration
	Now      func() time.Time

	mu sync.Mutex
}

func NewSlidingWindowPolicy(store StateStore, budget int, interval time.Duration) *SlidingWindowPolicy {
	if budget <= 0 {
		budget = 60
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SlidingWindowPolicy{
		Store:    store,
		Budget:   budget,
		Interval: interval,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reserve consumes one send slot for the tenant or fails with a
// ThrottledError carrying the retry hint. The check-and-append runs under a
// single lock so concurrent dispatchers cannot overshoot the budget.
func (p *SlidingWindowPolicy) Reserve(ctx context.Context, tenantID string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("ratelimit: tenant id is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.Store.Get(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, ErrStateNotFound) {
			return err
		}
		state = State{TenantID: tenantID}
	}

	now := p.now()
	cutoff := now.Add(-p.interval())
	recent := state.Sends[:0]
	for _, sentAt := range state.Sends {
		if sentAt.After(cutoff) {
			recent = append(recent, sentAt)
		}
	}
	state.Sends = recent

	if len(state.Sends) >= p.budget() {
		oldest := state.Sends[0]
		retryAfter := oldest.Add(p.interval()).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		// persist the pruned list so the state never grows unbounded
		state.UpdatedAt = now
		if err := p.Store.Upsert(ctx, state); err != nil {
			return err
		}
		return ThrottledError{TenantID: tenantID, Budget: p.budget(), RetryAfter: retryAfter}
	}

	state.Sends = append(state.Sends, now)
	state.UpdatedAt = now
	return p.Store.Upsert(ctx, state)
}

// Remaining reports how many sends the tenant has left in the current
// window.
func (p *SlidingWindowPolicy) Remaining(ctx context.Context, tenantID string) (int, error) {
	if p == nil || p.Store == nil {
		return 0, fmt.Errorf("ratelimit: policy is not configured")
	}
	state, err := p.Store.Get(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return p.budget(), nil
		}
		return 0, err
	}
	cutoff := p.now().Add(-p.interval())
	used := 0
	for _, sentAt := range state.Sends {
		if sentAt.After(cutoff) {
			used++
		}
	}
	remaining := p.budget() - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (p *SlidingWindowPolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *SlidingWindowPolicy) budget() int {
	if p != nil && p.Budget > 0 {
		return p.Budget
	}
	return 60
}

func (p *SlidingWindowPolicy) interval() time.Duration {
	if p != nil && p.Interval > 0 {
		return p.Interval
	}
	return time.Minute
}

type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, tenantID string) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.items[strings.TrimSpace(tenantID)]
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Sends = append([]time.Time(nil), state.Sends...)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.TenantID = strings.TrimSpace(state.TenantID)
	state.Sends = append([]time.Time(nil), state.Sends...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.TenantID] = state
	return nil
}
