package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
)

// Policy holds the configurable rules of the pool
type Policy struct {
	AllowFunderBoost bool
	MaxTimeLimit     time.Duration // Zero disables the upper bound at open time
}

// OpenInput represents the input for opening a bounty
type OpenInput struct {
	FunderID    uuid.UUID
	Title       string
	Description string
	IssueURL    string
	Amount      decimal.Decimal
	TimeLimit   time.Duration // Zero means the escrow default
}

// BoostInput represents the input for adding a contribution to an open bounty
type BoostInput struct {
	BountyID      uuid.UUID
	ContributorID uuid.UUID
	Amount        decimal.Decimal
}

// PoolService handles Contribution Pool operations
type PoolService struct {
	AccountRepo domain.AccountRepository
	BountyRepo  domain.BountyRepository
	Policy      Policy
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// NewPoolService creates a new PoolService instance
func NewPoolService(
	accountRepo domain.AccountRepository,
	bountyRepo domain.BountyRepository,
	policy Policy,
	logger *slog.Logger,
	m *metrics.Metrics,
) *PoolService {
	return &PoolService{
		AccountRepo: accountRepo,
		BountyRepo:  bountyRepo,
		Policy:      policy,
		Logger:      logging.OrDefault(logger),
		Metrics:     m,
	}
}

// Open creates an open bounty with the funder's pledge as seed contribution
// Logic:
//  1. Validate amount (positive, whole drops) and time limit
//  2. Fetch the funder and check the balance covers the pledge (no debit)
//  3. Persist bounty and seed contribution together
func (s *PoolService) Open(ctx context.Context, input OpenInput) (bounty *domain.Bounty, err error) {
	defer func() { s.Metrics.ObserveOperation("open", err) }()

	// 1. Validate input
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: bounty amount must be positive", domain.ErrInvalidArgument)
	}
	if err := domain.ValidateAmountScale(input.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if input.TimeLimit < 0 {
		return nil, fmt.Errorf("%w: time limit cannot be negative", domain.ErrInvalidArgument)
	}
	if s.Policy.MaxTimeLimit > 0 && input.TimeLimit > s.Policy.MaxTimeLimit {
		return nil, fmt.Errorf("%w: time limit exceeds %s", domain.ErrInvalidArgument, s.Policy.MaxTimeLimit)
	}

	// 2. Fetch funder
	funder, err := s.AccountRepo.GetByID(ctx, input.FunderID)
	if err != nil {
		return nil, err
	}
	if !funder.CanCover(input.Amount) {
		return nil, fmt.Errorf("funder balance %s cannot cover %s: %w",
			funder.Balance.String(), input.Amount.String(), domain.ErrInsufficientFunds)
	}

	bounty = &domain.Bounty{
		ID:            uuid.New(),
		FunderID:      funder.ID,
		FunderAddress: funder.Address,
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		IssueURL:      strings.TrimSpace(input.IssueURL),
		Amount:        input.Amount,
		TimeLimit:     input.TimeLimit,
		Status:        domain.BountyStatusOpen,
		EscrowStage:   domain.EscrowStageNone,
	}
	if err := bounty.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	seed := &domain.Contribution{
		ID:                 uuid.New(),
		BountyID:           bounty.ID,
		ContributorID:      funder.ID,
		ContributorAddress: funder.Address,
		Amount:             input.Amount,
	}

	// 3. Persist
	if err := s.BountyRepo.Create(ctx, bounty, seed); err != nil {
		return nil, fmt.Errorf("failed to create bounty: %w", err)
	}

	s.Logger.Info("bounty opened",
		"bounty_id", bounty.ID,
		"funder_id", funder.ID,
		"amount", bounty.Amount.String(),
	)
	return bounty, nil
}

// Boost appends a contribution to an open bounty
// The open status is re-checked by the store under the same lock acceptance uses.
func (s *PoolService) Boost(ctx context.Context, input BoostInput) (bounty *domain.Bounty, err error) {
	defer func() { s.Metrics.ObserveOperation("boost", err) }()

	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: boost amount must be positive", domain.ErrInvalidArgument)
	}
	if err := domain.ValidateAmountScale(input.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	current, err := s.BountyRepo.GetByID(ctx, input.BountyID)
	if err != nil {
		return nil, err
	}
	if err := current.Require(domain.BountyStatusOpen, "boost"); err != nil {
		return nil, err
	}
	if current.FunderID == input.ContributorID && !s.Policy.AllowFunderBoost {
		return nil, fmt.Errorf("%w: funder cannot boost their own bounty", domain.ErrForbidden)
	}

	contributor, err := s.AccountRepo.GetByID(ctx, input.ContributorID)
	if err != nil {
		return nil, err
	}

	// Soft check: the binding check happens at acceptance
	if !contributor.CanCover(input.Amount) {
		return nil, fmt.Errorf("contributor balance %s cannot cover %s: %w",
			contributor.Balance.String(), input.Amount.String(), domain.ErrInsufficientFunds)
	}

	contribution := &domain.Contribution{
		ID:                 uuid.New(),
		BountyID:           current.ID,
		ContributorID:      contributor.ID,
		ContributorAddress: contributor.Address,
		Amount:             input.Amount,
	}
	if err := contribution.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	bounty, err = s.BountyRepo.AddContribution(ctx, contribution)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("bounty boosted",
		"bounty_id", bounty.ID,
		"contributor_id", contributor.ID,
		"amount", input.Amount.String(),
		"pooled", bounty.Amount.String(),
	)
	return bounty, nil
}

// Cancel archives an open bounty. Only the funder may cancel.
func (s *PoolService) Cancel(ctx context.Context, bountyID, requestedBy uuid.UUID) (bounty *domain.Bounty, err error) {
	defer func() { s.Metrics.ObserveOperation("cancel", err) }()

	current, err := s.BountyRepo.GetByID(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	if current.FunderID != requestedBy {
		return nil, fmt.Errorf("%w: only the funder can cancel a bounty", domain.ErrForbidden)
	}

	bounty, err = s.BountyRepo.Cancel(ctx, bountyID)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("bounty cancelled", "bounty_id", bounty.ID, "released_pledges", current.Amount.String())
	return bounty, nil
}

// Get retrieves a bounty
func (s *PoolService) Get(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	return s.BountyRepo.GetByID(ctx, id)
}

// List retrieves bounties matching the filter
func (s *PoolService) List(ctx context.Context, filter domain.BountyFilter) ([]*domain.Bounty, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, filter.Status)
	}
	if filter.MinAmount != nil && filter.MaxAmount != nil && filter.MinAmount.GreaterThan(*filter.MaxAmount) {
		return nil, errors.Join(domain.ErrInvalidArgument, errors.New("min amount exceeds max amount"))
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.BountyRepo.List(ctx, filter)
}

// Contributions lists the live contributions of a bounty
func (s *PoolService) Contributions(ctx context.Context, bountyID uuid.UUID) ([]*domain.Contribution, error) {
	if _, err := s.BountyRepo.GetByID(ctx, bountyID); err != nil {
		return nil, err
	}
	return s.BountyRepo.ListContributions(ctx, bountyID)
}
