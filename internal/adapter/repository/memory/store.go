// Package memory implements the repositories in process memory.
// One mutex serializes every mutation, so multi-entity units are trivially atomic and ordered.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

// Store holds the shared state behind the memory repositories
type Store struct {
	mu            sync.RWMutex
	accounts      map[uuid.UUID]*domain.Account
	entries       []*domain.BalanceEntry
	bounties      map[uuid.UUID]*domain.Bounty
	contributions map[uuid.UUID][]*domain.Contribution // by bounty, ordered by position
	secrets       map[uuid.UUID]*domain.EscrowSecrets
	now           func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		accounts:      make(map[uuid.UUID]*domain.Account),
		bounties:      make(map[uuid.UUID]*domain.Bounty),
		contributions: make(map[uuid.UUID][]*domain.Contribution),
		secrets:       make(map[uuid.UUID]*domain.EscrowSecrets),
		now:           time.Now,
	}
}

// SetNowFunc overrides the clock used for timestamps
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// findContribution must be called with the lock held
func (s *Store) findContribution(id uuid.UUID) *domain.Contribution {
	for _, list := range s.contributions {
		for _, c := range list {
			if c.ID == id {
				return c
			}
		}
	}
	return nil
}

func copyAccount(a *domain.Account) *domain.Account {
	out := *a
	return &out
}

func copyBounty(b *domain.Bounty) *domain.Bounty {
	out := *b
	if b.DeveloperID != nil {
		id := *b.DeveloperID
		out.DeveloperID = &id
	}
	if b.CancelAfter != nil {
		t := *b.CancelAfter
		out.CancelAfter = &t
	}
	if b.AcceptedAt != nil {
		t := *b.AcceptedAt
		out.AcceptedAt = &t
	}
	if b.ClaimedAt != nil {
		t := *b.ClaimedAt
		out.ClaimedAt = &t
	}
	return &out
}

func copyContribution(c *domain.Contribution) *domain.Contribution {
	out := *c
	if c.Escrow != nil {
		record := *c.Escrow
		if c.Escrow.FinishedAt != nil {
			t := *c.Escrow.FinishedAt
			record.FinishedAt = &t
		}
		out.Escrow = &record
	}
	return &out
}
