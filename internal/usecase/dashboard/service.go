package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

const pageSize = 200

// BountyStats represents counts and pooled amounts per bounty status
type BountyStats struct {
	Total        int
	StatusCounts map[domain.BountyStatus]int
	TotalAmount  decimal.Decimal // Pooled amount of live (non cancelled) bounties
}

// PlatformStats represents platform wide aggregates
type PlatformStats struct {
	TotalAccounts  int
	Bounties       BountyStats
	OpenAmount     decimal.Decimal
	ClaimedAmount  decimal.Decimal // Sum actually paid out on claims
	RecentBounties int             // Created in the last 7 days
	TotalFunded    decimal.Decimal
	TotalEarned    decimal.Decimal
}

// UserStats represents the derived counters of one account
type UserStats struct {
	AccountID        uuid.UUID
	BountiesCreated  int
	BountiesAccepted int
	TotalFunded      decimal.Decimal
	TotalEarned      decimal.Decimal
}

// DashboardService handles statistics operations
type DashboardService struct {
	AccountRepo domain.AccountRepository
	BountyRepo  domain.BountyRepository
	Now         func() time.Time
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(accountRepo domain.AccountRepository, bountyRepo domain.BountyRepository) *DashboardService {
	return &DashboardService{
		AccountRepo: accountRepo,
		BountyRepo:  bountyRepo,
		Now:         time.Now,
	}
}

// GetBountyStats counts bounties per status
// Logic:
//   - Total and StatusCounts include cancelled bounties
//   - TotalAmount sums pools that are still live
func (s *DashboardService) GetBountyStats(ctx context.Context) (*BountyStats, error) {
	bounties, err := s.allBounties(ctx)
	if err != nil {
		return nil, err
	}

	stats := &BountyStats{
		StatusCounts: make(map[domain.BountyStatus]int),
		TotalAmount:  decimal.Zero,
	}
	for _, b := range bounties {
		stats.Total++
		stats.StatusCounts[b.Status]++
		if b.Status != domain.BountyStatusCancelled {
			stats.TotalAmount = stats.TotalAmount.Add(b.Amount)
		}
	}
	return stats, nil
}

// GetPlatformStats calculates platform wide aggregates
func (s *DashboardService) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	// 1. Accounts and their derived counters
	accounts, err := s.AccountRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	stats := &PlatformStats{
		TotalAccounts: len(accounts),
		OpenAmount:    decimal.Zero,
		ClaimedAmount: decimal.Zero,
		TotalFunded:   decimal.Zero,
		TotalEarned:   decimal.Zero,
	}
	for _, a := range accounts {
		stats.TotalFunded = stats.TotalFunded.Add(a.TotalFunded)
		stats.TotalEarned = stats.TotalEarned.Add(a.TotalEarned)
	}

	// 2. Bounties
	bounties, err := s.allBounties(ctx)
	if err != nil {
		return nil, err
	}

	stats.Bounties = BountyStats{
		StatusCounts: make(map[domain.BountyStatus]int),
		TotalAmount:  decimal.Zero,
	}
	recentCutoff := s.Now().Add(-7 * 24 * time.Hour)
	for _, b := range bounties {
		stats.Bounties.Total++
		stats.Bounties.StatusCounts[b.Status]++
		switch b.Status {
		case domain.BountyStatusOpen:
			stats.OpenAmount = stats.OpenAmount.Add(b.Amount)
		case domain.BountyStatusClaimed:
			stats.ClaimedAmount = stats.ClaimedAmount.Add(b.ClaimedAmount)
		}
		if b.Status != domain.BountyStatusCancelled {
			stats.Bounties.TotalAmount = stats.Bounties.TotalAmount.Add(b.Amount)
		}
		if b.CreatedAt.After(recentCutoff) {
			stats.RecentBounties++
		}
	}

	return stats, nil
}

// GetUserStats returns the derived counters of an account
func (s *DashboardService) GetUserStats(ctx context.Context, accountID uuid.UUID) (*UserStats, error) {
	account, err := s.AccountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &UserStats{
		AccountID:        account.ID,
		BountiesCreated:  account.BountiesCreated,
		BountiesAccepted: account.BountiesAccepted,
		TotalFunded:      account.TotalFunded,
		TotalEarned:      account.TotalEarned,
	}, nil
}

func (s *DashboardService) allBounties(ctx context.Context) ([]*domain.Bounty, error) {
	var all []*domain.Bounty
	for offset := 0; ; offset += pageSize {
		page, err := s.BountyRepo.List(ctx, domain.BountyFilter{IncludeCancelled: true, Limit: pageSize, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to list bounties: %w", err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
