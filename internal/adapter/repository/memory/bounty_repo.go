package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

// bountyRepository implements domain.BountyRepository
type bountyRepository struct {
	store *Store
}

// NewBountyRepository creates a new bounty repository over store
func NewBountyRepository(store *Store) domain.BountyRepository {
	return &bountyRepository{store: store}
}

// Create creates an open bounty with its seed contribution
func (r *bountyRepository) Create(ctx context.Context, bounty *domain.Bounty, seed *domain.Contribution) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bounties[bounty.ID]; exists {
		return fmt.Errorf("bounty %s already exists: %w", bounty.ID, domain.ErrConflict)
	}
	if _, ok := s.accounts[bounty.FunderID]; !ok {
		return fmt.Errorf("funder %s: %w", bounty.FunderID, domain.ErrNotFound)
	}

	now := s.timestamp()
	bounty.Version = 1
	bounty.CreatedAt = now
	bounty.UpdatedAt = now
	seed.BountyID = bounty.ID
	seed.Position = 0
	seed.CreatedAt = now

	s.bounties[bounty.ID] = copyBounty(bounty)
	s.contributions[bounty.ID] = []*domain.Contribution{copyContribution(seed)}
	return nil
}

// GetByID retrieves a bounty
func (r *bountyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bounties[id]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", id, domain.ErrNotFound)
	}
	return copyBounty(b), nil
}

// List retrieves bounties newest first
func (r *bountyRepository) List(ctx context.Context, filter domain.BountyFilter) ([]*domain.Bounty, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	title := strings.ToLower(strings.TrimSpace(filter.TitleQuery))
	issue := strings.ToLower(strings.TrimSpace(filter.IssueURL))

	out := make([]*domain.Bounty, 0)
	for _, b := range s.bounties {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.Status == "" && !filter.IncludeCancelled && b.Status == domain.BountyStatusCancelled {
			continue
		}
		if filter.FunderID != nil && b.FunderID != *filter.FunderID {
			continue
		}
		if filter.DeveloperID != nil && !b.IsAssignedTo(*filter.DeveloperID) {
			continue
		}
		if filter.ContributorID != nil && !s.hasContributor(b.ID, *filter.ContributorID) {
			continue
		}
		if title != "" &&
			!strings.Contains(strings.ToLower(b.Title), title) &&
			!strings.Contains(strings.ToLower(b.Description), title) {
			continue
		}
		if issue != "" && !strings.Contains(strings.ToLower(b.IssueURL), issue) {
			continue
		}
		if filter.MinAmount != nil && b.Amount.LessThan(*filter.MinAmount) {
			continue
		}
		if filter.MaxAmount != nil && b.Amount.GreaterThan(*filter.MaxAmount) {
			continue
		}
		if filter.CreatedAfter != nil && !b.CreatedAt.After(*filter.CreatedAfter) {
			continue
		}
		out = append(out, copyBounty(b))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*domain.Bounty{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) hasContributor(bountyID, accountID uuid.UUID) bool {
	for _, c := range s.contributions[bountyID] {
		if c.ContributorID == accountID {
			return true
		}
	}
	return false
}

// ListContributions retrieves live contributions ordered by position
func (r *bountyRepository) ListContributions(ctx context.Context, bountyID uuid.UUID) ([]*domain.Contribution, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.bounties[bountyID]; !ok {
		return nil, fmt.Errorf("bounty %s: %w", bountyID, domain.ErrNotFound)
	}

	list := s.contributions[bountyID]
	out := make([]*domain.Contribution, 0, len(list))
	for _, c := range list {
		out = append(out, copyContribution(c))
	}
	return out, nil
}

// AddContribution appends a contribution while the bounty is open
func (r *bountyRepository) AddContribution(ctx context.Context, contribution *domain.Contribution) (*domain.Bounty, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[contribution.BountyID]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", contribution.BountyID, domain.ErrNotFound)
	}
	if err := b.Require(domain.BountyStatusOpen, "boost"); err != nil {
		return nil, err
	}

	now := s.timestamp()
	contribution.Position = len(s.contributions[b.ID])
	contribution.CreatedAt = now
	s.contributions[b.ID] = append(s.contributions[b.ID], copyContribution(contribution))

	b.Amount = b.Amount.Add(contribution.Amount)
	b.Version++
	b.UpdatedAt = now
	return copyBounty(b), nil
}

// Cancel moves an open bounty to cancelled and deletes its contributions
func (r *bountyRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", id, domain.ErrNotFound)
	}

	next := copyBounty(b)
	if err := next.TransitionTo(domain.BountyStatusCancelled); err != nil {
		return nil, err
	}
	next.Amount = decimal.Zero
	next.Version++
	next.UpdatedAt = s.timestamp()

	delete(s.contributions, id)
	s.bounties[id] = next
	return copyBounty(next), nil
}

// BeginAcceptance moves open -> accepted and stores the commitment
func (r *bountyRepository) BeginAcceptance(ctx context.Context, ticket domain.AcceptanceTicket) (*domain.Bounty, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[ticket.BountyID]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", ticket.BountyID, domain.ErrNotFound)
	}
	if err := b.Require(domain.BountyStatusOpen, "accept"); err != nil {
		return nil, err
	}
	if b.Version != ticket.ExpectedVersion {
		return nil, fmt.Errorf("bounty %s is at version %d, expected %d: %w",
			b.ID, b.Version, ticket.ExpectedVersion, domain.ErrConflict)
	}
	if _, ok := s.accounts[ticket.DeveloperID]; !ok {
		return nil, fmt.Errorf("developer %s: %w", ticket.DeveloperID, domain.ErrNotFound)
	}

	next := copyBounty(b)
	if err := next.TransitionTo(domain.BountyStatusAccepted); err != nil {
		return nil, err
	}
	if err := next.AdvanceStage(domain.EscrowStageIssuing); err != nil {
		return nil, err
	}

	developerID := ticket.DeveloperID
	cancelAfter := ticket.CancelAfter.UTC()
	acceptedAt := ticket.AcceptedAt.UTC()
	next.DeveloperID = &developerID
	next.DeveloperAddress = ticket.DeveloperAddress
	next.Condition = ticket.Condition
	next.CancelAfter = &cancelAfter
	next.AcceptedAt = &acceptedAt
	next.Version++
	next.UpdatedAt = s.timestamp()

	s.bounties[b.ID] = next
	s.secrets[b.ID] = &domain.EscrowSecrets{BountyID: b.ID, Fulfillment: ticket.Fulfillment}
	return copyBounty(next), nil
}

// RecordEscrow attaches a ledger escrow to a contribution, optionally debiting the contributor
func (r *bountyRepository) RecordEscrow(ctx context.Context, lock domain.EscrowLock) (*domain.Contribution, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[lock.BountyID]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", lock.BountyID, domain.ErrNotFound)
	}
	if b.Status != domain.BountyStatusAccepted || b.EscrowStage != domain.EscrowStageIssuing {
		return nil, &domain.TransitionError{Entity: "escrow stage", From: string(b.EscrowStage), To: "record escrow"}
	}

	var contribution *domain.Contribution
	for _, c := range s.contributions[b.ID] {
		if c.ID == lock.ContributionID {
			contribution = c
			break
		}
	}
	if contribution == nil {
		return nil, fmt.Errorf("contribution %s: %w", lock.ContributionID, domain.ErrNotFound)
	}
	if contribution.Escrow != nil {
		return nil, fmt.Errorf("contribution %s already has an escrow: %w", contribution.ID, domain.ErrConflict)
	}

	if lock.Debit {
		bountyID := b.ID
		_, err := s.debitLocked(domain.BalanceChange{
			AccountID: contribution.ContributorID,
			Amount:    contribution.Amount,
			Reason:    domain.ReasonEscrowLock,
			BountyID:  &bountyID,
		})
		if err != nil {
			return nil, err
		}
	}

	record := lock.Record
	record.Debited = lock.Debit
	if record.Status == "" {
		record.Status = domain.EscrowStatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.timestamp()
	}
	contribution.Escrow = &record
	return copyContribution(contribution), nil
}

// CompleteAcceptance moves stage issuing -> issued
func (r *bountyRepository) CompleteAcceptance(ctx context.Context, id uuid.UUID, completionSecret string) (*domain.Bounty, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", id, domain.ErrNotFound)
	}
	for _, c := range s.contributions[id] {
		if c.Escrow == nil {
			return nil, fmt.Errorf("contribution %s has no escrow: %w", c.ID, domain.ErrInvalidTransition)
		}
	}

	next, err := s.advance(b, domain.EscrowStageIssued)
	if err != nil {
		return nil, err
	}
	s.secrets[id].CompletionSecret = completionSecret
	return next, nil
}

// BeginRelease moves stage issued -> releasing
func (r *bountyRepository) BeginRelease(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	return r.advanceStage(id, domain.EscrowStageReleasing)
}

// AbortRelease moves stage releasing -> issued
func (r *bountyRepository) AbortRelease(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	return r.advanceStage(id, domain.EscrowStageIssued)
}

func (r *bountyRepository) advanceStage(id uuid.UUID, stage domain.EscrowStage) (*domain.Bounty, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[id]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", id, domain.ErrNotFound)
	}
	return s.advance(b, stage)
}

// advance must be called with the write lock held
func (s *Store) advance(b *domain.Bounty, stage domain.EscrowStage) (*domain.Bounty, error) {
	next := copyBounty(b)
	if err := next.AdvanceStage(stage); err != nil {
		return nil, err
	}
	next.Version++
	next.UpdatedAt = s.timestamp()
	s.bounties[b.ID] = next
	return copyBounty(next), nil
}

// MarkEscrowFinished records a released escrow
func (r *bountyRepository) MarkEscrowFinished(ctx context.Context, contributionID uuid.UUID, finishTransferID string, finishedAt time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.findContribution(contributionID)
	if c == nil {
		return fmt.Errorf("contribution %s: %w", contributionID, domain.ErrNotFound)
	}
	if c.Escrow == nil {
		return fmt.Errorf("contribution %s has no escrow: %w", contributionID, domain.ErrInvalidTransition)
	}

	at := finishedAt.UTC()
	c.Escrow.Status = domain.EscrowStatusFinished
	c.Escrow.FinishTransferID = finishTransferID
	c.Escrow.FinishedAt = &at
	return nil
}

// SettleClaim credits the developer and moves the bounty to claimed
func (r *bountyRepository) SettleClaim(ctx context.Context, settlement domain.Settlement) (*domain.Bounty, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bounties[settlement.BountyID]
	if !ok {
		return nil, fmt.Errorf("bounty %s: %w", settlement.BountyID, domain.ErrNotFound)
	}
	if !b.IsAssignedTo(settlement.DeveloperID) {
		return nil, fmt.Errorf("account %s is not the assigned developer: %w", settlement.DeveloperID, domain.ErrForbidden)
	}
	if _, ok := s.accounts[settlement.DeveloperID]; !ok {
		return nil, fmt.Errorf("developer %s: %w", settlement.DeveloperID, domain.ErrNotFound)
	}

	next := copyBounty(b)
	if err := next.AdvanceStage(domain.EscrowStageReleased); err != nil {
		return nil, err
	}
	if err := next.TransitionTo(domain.BountyStatusClaimed); err != nil {
		return nil, err
	}

	if settlement.Amount.IsPositive() {
		bountyID := b.ID
		if _, err := s.creditLocked(domain.BalanceChange{
			AccountID: settlement.DeveloperID,
			Amount:    settlement.Amount,
			Reason:    domain.ReasonClaimPayout,
			BountyID:  &bountyID,
		}); err != nil {
			return nil, err
		}
	}

	claimedAt := settlement.ClaimedAt.UTC()
	next.ClaimedAmount = settlement.Amount
	next.ClaimedAt = &claimedAt
	next.Version++
	next.UpdatedAt = s.timestamp()
	s.bounties[b.ID] = next
	return copyBounty(next), nil
}

// GetSecrets retrieves the fulfillment and completion secret
func (r *bountyRepository) GetSecrets(ctx context.Context, bountyID uuid.UUID) (*domain.EscrowSecrets, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	secrets, ok := s.secrets[bountyID]
	if !ok {
		return nil, fmt.Errorf("secrets for bounty %s: %w", bountyID, domain.ErrNotFound)
	}
	out := *secrets
	return &out, nil
}
