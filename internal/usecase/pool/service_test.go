package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/bountyflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
)

type testEnv struct {
	service  *PoolService
	accounts domain.AccountRepository
}

func newTestEnv(policy Policy) *testEnv {
	store := memory.NewStore()
	accounts := memory.NewAccountRepository(store)
	bounties := memory.NewBountyRepository(store)
	return &testEnv{
		service:  NewPoolService(accounts, bounties, policy, logging.Discard(), nil),
		accounts: accounts,
	}
}

func (e *testEnv) account(t *testing.T, name string, balance int64) *domain.Account {
	t.Helper()
	ctx := context.Background()
	account := &domain.Account{ID: uuid.New(), Username: name, Address: "r" + name, Credential: "s" + name}
	require.NoError(t, e.accounts.Create(ctx, account))
	if balance > 0 {
		_, err := e.accounts.Credit(ctx, domain.BalanceChange{AccountID: account.ID, Amount: decimal.NewFromInt(balance), Reason: domain.ReasonDeposit})
		require.NoError(t, err)
	}
	return account
}

func (e *testEnv) open(t *testing.T, funder *domain.Account, amount int64) *domain.Bounty {
	t.Helper()
	bounty, err := e.service.Open(context.Background(), OpenInput{
		FunderID: funder.ID,
		Title:    "Fix flaky test",
		IssueURL: "https://github.com/acme/widget/issues/7",
		Amount:   decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return bounty
}

func TestOpen_DoesNotDebitFunder(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)

	bounty := env.open(t, funder, 100)

	assert.Equal(t, domain.BountyStatusOpen, bounty.Status)
	assert.Equal(t, domain.EscrowStageNone, bounty.EscrowStage)
	assert.True(t, bounty.Amount.Equal(decimal.NewFromInt(100)))

	after, err := env.accounts.GetByID(ctx, funder.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, after.BountiesCreated)
	assert.True(t, after.TotalFunded.Equal(decimal.NewFromInt(100)))

	contributions, err := env.service.Contributions(ctx, bounty.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 1)
	assert.Equal(t, 0, contributions[0].Position)
	assert.Equal(t, funder.ID, contributions[0].ContributorID)
}

func TestOpen_Validation(t *testing.T) {
	env := newTestEnv(Policy{MaxTimeLimit: 30 * 24 * time.Hour})
	funder := env.account(t, "funder", 100)

	tests := []struct {
		name    string
		input   OpenInput
		wantErr error
	}{
		{
			name:    "zero amount",
			input:   OpenInput{FunderID: funder.ID, Title: "t", IssueURL: "u", Amount: decimal.Zero},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "amount finer than one drop",
			input:   OpenInput{FunderID: funder.ID, Title: "t", IssueURL: "u", Amount: decimal.RequireFromString("1.0000001")},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "missing title",
			input:   OpenInput{FunderID: funder.ID, IssueURL: "u", Amount: decimal.NewFromInt(10)},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "time limit above maximum",
			input:   OpenInput{FunderID: funder.ID, Title: "t", IssueURL: "u", Amount: decimal.NewFromInt(10), TimeLimit: 31 * 24 * time.Hour},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "balance below pledge",
			input:   OpenInput{FunderID: funder.ID, Title: "t", IssueURL: "u", Amount: decimal.NewFromInt(101)},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:    "unknown funder",
			input:   OpenInput{FunderID: uuid.New(), Title: "t", IssueURL: "u", Amount: decimal.NewFromInt(1)},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Open(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBoost_GrowsPool(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)
	alice := env.account(t, "alice", 80)

	bounty := env.open(t, funder, 100)

	boosted, err := env.service.Boost(ctx, BoostInput{BountyID: bounty.ID, ContributorID: alice.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.True(t, boosted.Amount.Equal(decimal.NewFromInt(150)))
	assert.Greater(t, boosted.Version, bounty.Version)

	contributions, err := env.service.Contributions(ctx, bounty.ID)
	require.NoError(t, err)
	require.Len(t, contributions, 2)
	assert.True(t, domain.SumContributions(contributions).Equal(boosted.Amount))
	assert.Equal(t, 1, contributions[1].Position)

	// Pledges are never debited before acceptance
	after, err := env.accounts.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(80)))
}

func TestBoost_Rules(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)
	alice := env.account(t, "alice", 20)
	bounty := env.open(t, funder, 100)

	tests := []struct {
		name    string
		input   BoostInput
		wantErr error
	}{
		{
			name:    "non positive amount",
			input:   BoostInput{BountyID: bounty.ID, ContributorID: alice.ID, Amount: decimal.NewFromInt(-1)},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "amount finer than one drop",
			input:   BoostInput{BountyID: bounty.ID, ContributorID: alice.ID, Amount: decimal.RequireFromString("0.0000005")},
			wantErr: domain.ErrInvalidArgument,
		},
		{
			name:    "funder boost disabled",
			input:   BoostInput{BountyID: bounty.ID, ContributorID: funder.ID, Amount: decimal.NewFromInt(10)},
			wantErr: domain.ErrForbidden,
		},
		{
			name:    "soft balance check",
			input:   BoostInput{BountyID: bounty.ID, ContributorID: alice.ID, Amount: decimal.NewFromInt(21)},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:    "unknown bounty",
			input:   BoostInput{BountyID: uuid.New(), ContributorID: alice.ID, Amount: decimal.NewFromInt(1)},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Boost(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	current, err := env.service.Get(ctx, bounty.ID)
	require.NoError(t, err)
	assert.True(t, current.Amount.Equal(decimal.NewFromInt(100)))
}

func TestBoost_FunderBoostAllowedByPolicy(t *testing.T) {
	env := newTestEnv(Policy{AllowFunderBoost: true})
	funder := env.account(t, "funder", 500)
	bounty := env.open(t, funder, 100)

	boosted, err := env.service.Boost(context.Background(), BoostInput{BountyID: bounty.ID, ContributorID: funder.ID, Amount: decimal.NewFromInt(25)})
	require.NoError(t, err)
	assert.True(t, boosted.Amount.Equal(decimal.NewFromInt(125)))
}

func TestBoost_NonOpenBountyLeavesPoolUnchanged(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)
	alice := env.account(t, "alice", 100)
	bounty := env.open(t, funder, 100)

	_, err := env.service.Cancel(ctx, bounty.ID, funder.ID)
	require.NoError(t, err)

	_, err = env.service.Boost(ctx, BoostInput{BountyID: bounty.ID, ContributorID: alice.ID, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	current, err := env.service.Get(ctx, bounty.ID)
	require.NoError(t, err)
	assert.True(t, current.Amount.IsZero())
}

func TestBoost_ConcurrentBoostsKeepPoolConsistent(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)
	bounty := env.open(t, funder, 100)

	contributors := make([]*domain.Account, 8)
	for i := range contributors {
		contributors[i] = env.account(t, uuid.NewString()[:8], 10)
	}

	var wg sync.WaitGroup
	for _, c := range contributors {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := env.service.Boost(ctx, BoostInput{BountyID: bounty.ID, ContributorID: id, Amount: decimal.NewFromInt(10)})
			assert.NoError(t, err)
		}(c.ID)
	}
	wg.Wait()

	current, err := env.service.Get(ctx, bounty.ID)
	require.NoError(t, err)
	contributions, err := env.service.Contributions(ctx, bounty.ID)
	require.NoError(t, err)

	assert.Len(t, contributions, 9)
	assert.True(t, current.Amount.Equal(decimal.NewFromInt(180)))
	assert.True(t, domain.SumContributions(contributions).Equal(current.Amount))
}

func TestCancel_RevertsAggregatesWithoutBalanceChange(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)
	alice := env.account(t, "alice", 100)

	before, err := env.accounts.GetByID(ctx, funder.ID)
	require.NoError(t, err)

	bounty := env.open(t, funder, 100)
	_, err = env.service.Boost(ctx, BoostInput{BountyID: bounty.ID, ContributorID: alice.ID, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)

	cancelled, err := env.service.Cancel(ctx, bounty.ID, funder.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BountyStatusCancelled, cancelled.Status)

	after, err := env.accounts.GetByID(ctx, funder.ID)
	require.NoError(t, err)
	assert.Equal(t, before.BountiesCreated, after.BountiesCreated)
	assert.True(t, after.TotalFunded.Equal(before.TotalFunded))
	assert.True(t, after.Balance.Equal(before.Balance))

	aliceAfter, err := env.accounts.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, aliceAfter.TotalFunded.IsZero())

	open, err := env.service.List(ctx, domain.BountyFilter{Status: domain.BountyStatusOpen})
	require.NoError(t, err)
	assert.Empty(t, open)

	contributions, err := env.service.Contributions(ctx, bounty.ID)
	require.NoError(t, err)
	assert.Empty(t, contributions)
}

func TestCancel_OnlyFunder(t *testing.T) {
	env := newTestEnv(Policy{})
	ctx := context.Background()
	funder := env.account(t, "funder", 500)
	alice := env.account(t, "alice", 100)
	bounty := env.open(t, funder, 100)

	_, err := env.service.Cancel(ctx, bounty.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.service.Cancel(ctx, bounty.ID, funder.ID)
	require.NoError(t, err)

	_, err = env.service.Cancel(ctx, bounty.ID, funder.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestList_RejectsInvertedAmountRange(t *testing.T) {
	env := newTestEnv(Policy{})
	minAmount := decimal.NewFromInt(10)
	maxAmount := decimal.NewFromInt(5)

	_, err := env.service.List(context.Background(), domain.BountyFilter{MinAmount: &minAmount, MaxAmount: &maxAmount})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
