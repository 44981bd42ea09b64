// Package idempotency tracks correlation ids of inbound requests so a
// redelivered message is never applied twice.
package idempotency

import (
	"context"
	"sync"
	"time"
)

// State is what Begin found for a correlation id.
type State int

const (
	// StateNew means the caller now holds a pending claim and must Complete
	// or Release it.
	StateNew State = iota
	// StatePending means another attempt holds the claim and has not finished.
	StatePending
	// StateDone means the request was already applied.
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDone:
		return "done"
	default:
		return "new"
	}
}

// Store records correlation ids. A pending claim expires after its ttl so a
// consumer that crashed mid-request does not block the id forever.
type Store interface {
	Begin(ctx context.Context, id string) (State, error)
	Complete(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
}

type TTLs struct {
	Pending time.Duration
	Done    time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{Pending: 2 * time.Minute, Done: 24 * time.Hour}
}

type claim struct {
	done      bool
	expiresAt time.Time
}

// MemoryStore keeps claims in process.
type MemoryStore struct {
	mu     sync.Mutex
	claims map[string]claim
	ttls   TTLs
	now    func() time.Time
}

func NewMemoryStore(ttls TTLs) *MemoryStore {
	return &MemoryStore{
		claims: make(map[string]claim),
		ttls:   ttls,
		now:    time.Now,
	}
}

func (s *MemoryStore) Begin(ctx context.Context, id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.claims[id]; ok && now.Before(c.expiresAt) {
		if c.done {
			return StateDone, nil
		}
		return StatePending, nil
	}
	s.claims[id] = claim{expiresAt: now.Add(s.ttls.Pending)}
	return StateNew, nil
}

func (s *MemoryStore) Complete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.claims[id] = claim{done: true, expiresAt: s.now().Add(s.ttls.Done)}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, id)
	return nil
}
