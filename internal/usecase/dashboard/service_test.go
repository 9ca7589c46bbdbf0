package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/bountyflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bountyflow-backend/internal/domain"
)

// MockBountyRepository is a mock of the listing part of BountyRepository for testing
type MockBountyRepository struct {
	domain.BountyRepository
	mock.Mock
}

func (m *MockBountyRepository) List(ctx context.Context, filter domain.BountyFilter) ([]*domain.Bounty, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Bounty), args.Error(1)
}

func TestGetBountyStats_CountsEveryStatus(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockBountyRepository)
	service := NewDashboardService(nil, mockRepo)

	bounties := []*domain.Bounty{
		{ID: uuid.New(), Status: domain.BountyStatusOpen, Amount: decimal.NewFromInt(100)},
		{ID: uuid.New(), Status: domain.BountyStatusOpen, Amount: decimal.NewFromInt(50)},
		{ID: uuid.New(), Status: domain.BountyStatusAccepted, Amount: decimal.NewFromInt(30)},
		{ID: uuid.New(), Status: domain.BountyStatusCancelled, Amount: decimal.Zero},
	}
	mockRepo.On("List", ctx, domain.BountyFilter{IncludeCancelled: true, Limit: pageSize, Offset: 0}).Return(bounties, nil)

	stats, err := service.GetBountyStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.StatusCounts[domain.BountyStatusOpen])
	assert.Equal(t, 1, stats.StatusCounts[domain.BountyStatusAccepted])
	assert.Equal(t, 1, stats.StatusCounts[domain.BountyStatusCancelled])
	assert.True(t, stats.TotalAmount.Equal(decimal.NewFromInt(180)))
	mockRepo.AssertExpectations(t)
}

func TestGetBountyStats_Pages(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockBountyRepository)
	service := NewDashboardService(nil, mockRepo)

	full := make([]*domain.Bounty, pageSize)
	for i := range full {
		full[i] = &domain.Bounty{ID: uuid.New(), Status: domain.BountyStatusOpen, Amount: decimal.NewFromInt(1)}
	}
	mockRepo.On("List", ctx, domain.BountyFilter{IncludeCancelled: true, Limit: pageSize, Offset: 0}).Return(full, nil)
	mockRepo.On("List", ctx, domain.BountyFilter{IncludeCancelled: true, Limit: pageSize, Offset: pageSize}).
		Return([]*domain.Bounty{{ID: uuid.New(), Status: domain.BountyStatusClaimed, Amount: decimal.NewFromInt(5)}}, nil)

	stats, err := service.GetBountyStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, pageSize+1, stats.Total)
	assert.True(t, stats.TotalAmount.Equal(decimal.NewFromInt(pageSize+5)))
}

func TestGetPlatformStats(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	accounts := memory.NewAccountRepository(store)
	bounties := memory.NewBountyRepository(store)
	service := NewDashboardService(accounts, bounties)

	funder := &domain.Account{ID: uuid.New(), Username: "funder", Address: "rfunder", Credential: "s", Balance: decimal.NewFromInt(500)}
	alice := &domain.Account{ID: uuid.New(), Username: "alice", Address: "ralice", Credential: "s", Balance: decimal.NewFromInt(100)}
	require.NoError(t, accounts.Create(ctx, funder))
	require.NoError(t, accounts.Create(ctx, alice))

	open := func(amount int64) *domain.Bounty {
		b := &domain.Bounty{ID: uuid.New(), FunderID: funder.ID, Title: "t", IssueURL: "u", Amount: decimal.NewFromInt(amount), Status: domain.BountyStatusOpen}
		require.NoError(t, bounties.Create(ctx, b, &domain.Contribution{ID: uuid.New(), ContributorID: funder.ID, Amount: decimal.NewFromInt(amount)}))
		return b
	}

	first := open(100)
	open(40)
	cancelled := open(10)
	_, err := bounties.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	_, err = bounties.AddContribution(ctx, &domain.Contribution{ID: uuid.New(), BountyID: first.ID, ContributorID: alice.ID, Amount: decimal.NewFromInt(25)})
	require.NoError(t, err)

	stats, err := service.GetPlatformStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalAccounts)
	assert.Equal(t, 3, stats.Bounties.Total)
	assert.Equal(t, 2, stats.Bounties.StatusCounts[domain.BountyStatusOpen])
	assert.Equal(t, 1, stats.Bounties.StatusCounts[domain.BountyStatusCancelled])
	assert.True(t, stats.OpenAmount.Equal(decimal.NewFromInt(165)))
	assert.True(t, stats.TotalFunded.Equal(decimal.NewFromInt(165)))
	assert.True(t, stats.ClaimedAmount.IsZero())
	assert.Equal(t, 3, stats.RecentBounties)

	service.Now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	later, err := service.GetPlatformStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, later.RecentBounties)

	user, err := service.GetUserStats(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, user.TotalFunded.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 0, user.BountiesCreated)

	_, err = service.GetUserStats(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
