package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	store *Store
}

// NewAccountRepository creates a new account repository over store
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{store: store}
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[account.ID]; exists {
		return fmt.Errorf("account %s already exists: %w", account.ID, domain.ErrConflict)
	}
	for _, existing := range s.accounts {
		if existing.Username == account.Username || existing.Address == account.Address {
			return fmt.Errorf("username or address already registered: %w", domain.ErrConflict)
		}
	}

	now := s.timestamp()
	stored := copyAccount(account)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.accounts[account.ID] = stored

	account.CreatedAt = now
	account.UpdatedAt = now
	return nil
}

// GetByID retrieves an account with derived aggregates
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return s.withAggregates(account), nil
}

// GetByAddress retrieves an account by ledger address
func (r *accountRepository) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Address == address {
			return s.withAggregates(account), nil
		}
	}
	return nil, fmt.Errorf("account with address %s: %w", address, domain.ErrNotFound)
}

// List retrieves all accounts ordered by creation time
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]*domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, s.withAggregates(account))
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].Username < accounts[j].Username
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

// Debit removes an amount from the balance
func (r *accountRepository) Debit(ctx context.Context, change domain.BalanceChange) (decimal.Decimal, error) {
	if err := change.Validate(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.debitLocked(change)
}

// Credit adds an amount to the balance
func (r *accountRepository) Credit(ctx context.Context, change domain.BalanceChange) (decimal.Decimal, error) {
	if err := change.Validate(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.creditLocked(change)
}

// SetBalance overwrites the balance and journals the difference
func (r *accountRepository) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, reason domain.EntryReason) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: balance cannot be negative", domain.ErrInvalidArgument)
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}

	diff := balance.Sub(account.Balance)
	switch diff.Sign() {
	case 1:
		return s.creditLocked(domain.BalanceChange{AccountID: id, Amount: diff, Reason: reason})
	case -1:
		return s.debitLocked(domain.BalanceChange{AccountID: id, Amount: diff.Neg(), Reason: reason})
	}
	return account.Balance, nil
}

// ListEntries retrieves the newest balance entries first
func (r *accountRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.BalanceEntry, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}

	entries := make([]*domain.BalanceEntry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID != accountID {
			continue
		}
		entry := *s.entries[i]
		entries = append(entries, &entry)
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// debitLocked must be called with the write lock held
func (s *Store) debitLocked(change domain.BalanceChange) (decimal.Decimal, error) {
	account, ok := s.accounts[change.AccountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s: %w", change.AccountID, domain.ErrNotFound)
	}
	if !account.CanCover(change.Amount) {
		return decimal.Zero, fmt.Errorf("account %s has %s, needs %s: %w",
			account.ID, account.Balance, change.Amount, domain.ErrInsufficientFunds)
	}

	account.Balance = account.Balance.Sub(change.Amount)
	s.journal(account, change, domain.EntryTypeDebit)
	return account.Balance, nil
}

// creditLocked must be called with the write lock held
func (s *Store) creditLocked(change domain.BalanceChange) (decimal.Decimal, error) {
	account, ok := s.accounts[change.AccountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %s: %w", change.AccountID, domain.ErrNotFound)
	}

	account.Balance = account.Balance.Add(change.Amount)
	s.journal(account, change, domain.EntryTypeCredit)
	return account.Balance, nil
}

func (s *Store) journal(account *domain.Account, change domain.BalanceChange, entryType domain.EntryType) {
	now := s.timestamp()
	account.UpdatedAt = now

	var bountyID *uuid.UUID
	if change.BountyID != nil {
		id := *change.BountyID
		bountyID = &id
	}

	s.entries = append(s.entries, &domain.BalanceEntry{
		ID:           uuid.New(),
		AccountID:    account.ID,
		BountyID:     bountyID,
		Amount:       change.Amount,
		Type:         entryType,
		Reason:       change.Reason,
		BalanceAfter: account.Balance,
		CreatedAt:    now,
	})
}

// withAggregates returns a copy of account with counters derived from the source records.
// Must be called with at least the read lock held.
func (s *Store) withAggregates(account *domain.Account) *domain.Account {
	out := copyAccount(account)
	out.TotalFunded = decimal.Zero
	out.TotalEarned = decimal.Zero

	for _, b := range s.bounties {
		if b.FunderID == account.ID && b.Status != domain.BountyStatusCancelled {
			out.BountiesCreated++
		}
		if b.IsAssignedTo(account.ID) {
			out.BountiesAccepted++
			out.TotalEarned = out.TotalEarned.Add(b.ClaimedAmount)
		}
	}
	for _, list := range s.contributions {
		for _, c := range list {
			if c.ContributorID == account.ID {
				out.TotalFunded = out.TotalFunded.Add(c.Amount)
			}
		}
	}
	return out
}
