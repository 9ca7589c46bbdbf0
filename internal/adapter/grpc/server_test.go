package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	ledgermemory "github.com/simaogato/bountyflow-backend/internal/adapter/ledger/memory"
	"github.com/simaogato/bountyflow-backend/internal/adapter/oracle/github"
	"github.com/simaogato/bountyflow-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/retry"
	"github.com/simaogato/bountyflow-backend/internal/usecase/account"
	"github.com/simaogato/bountyflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/bountyflow-backend/internal/usecase/escrow"
	"github.com/simaogato/bountyflow-backend/internal/usecase/pool"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
	"github.com/simaogato/bountyflow-backend/internal/usecase/release"
)

const (
	testToken = "test-token-123"
	issueURL  = "https://github.com/acme/app/issues/12"
)

type grpcEnv struct {
	ctx    context.Context
	client *BountyServiceClient
	ledger *ledgermemory.Ledger
}

func newGRPCEnv(t *testing.T) *grpcEnv {
	t.Helper()

	store := memory.NewStore()
	accounts := memory.NewAccountRepository(store)
	bounties := memory.NewBountyRepository(store)
	ledger := ledgermemory.New()
	logger := logging.Discard()
	fast := retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}

	policy := escrow.DefaultPolicy()
	policy.Retry = fast
	reconciler := reconcile.NewReconciler(accounts, bounties, logger, nil)

	server := NewServer(
		account.NewAccountService(accounts, ledger, logger),
		pool.NewPoolService(accounts, bounties, pool.Policy{}, logger, nil),
		escrow.NewCoordinator(accounts, bounties, ledger, reconciler, policy, logger, nil),
		release.NewGate(accounts, bounties, ledger, github.InlineOracle{}, reconciler, fast, logger, nil),
		dashboard.NewDashboardService(accounts, bounties),
	)

	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		LoggingInterceptor(logger, nil),
		AuthInterceptor(testToken),
	))
	RegisterBountyServiceServer(s, server)
	go func() {
		_ = s.Serve(lis)
	}()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+testToken)
	return &grpcEnv{ctx: ctx, client: NewBountyServiceClient(conn), ledger: ledger}
}

func (e *grpcEnv) register(t *testing.T, name, balance string) *Account {
	t.Helper()
	address := "r" + name
	credential := "s" + name
	e.ledger.Fund(address, credential, decimal.NewFromInt(1000))

	resp, err := e.client.RegisterAccount(e.ctx, &RegisterAccountRequest{
		Username:       name,
		Address:        address,
		Credential:     credential,
		InitialBalance: balance,
	})
	require.NoError(t, err)
	return resp.Account
}

func assertCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok, "error should be a gRPC status")
	assert.Equal(t, code, st.Code(), st.Message())
}

func TestServer_BountyLifecycle(t *testing.T) {
	env := newGRPCEnv(t)
	funder := env.register(t, "funder", "500")
	alice := env.register(t, "alice", "100")
	dev := env.register(t, "dev", "")

	opened, err := env.client.OpenBounty(env.ctx, &OpenBountyRequest{
		FunderId:         funder.Id,
		Title:            "Fix login",
		IssueUrl:         issueURL,
		Amount:           "200",
		TimeLimitSeconds: 3600,
	})
	require.NoError(t, err)
	assert.Equal(t, "open", opened.Bounty.Status)

	boosted, err := env.client.BoostBounty(env.ctx, &BoostBountyRequest{
		BountyId:      opened.Bounty.Id,
		ContributorId: alice.Id,
		Amount:        "50",
	})
	require.NoError(t, err)
	assert.Equal(t, "250", boosted.Bounty.Amount)

	listed, err := env.client.ListBounties(env.ctx, &ListBountiesRequest{ContributorId: alice.Id})
	require.NoError(t, err)
	require.Len(t, listed.Bounties, 1)

	accepted, err := env.client.AcceptBounty(env.ctx, &AcceptBountyRequest{
		BountyId:    opened.Bounty.Id,
		DeveloperId: dev.Id,
	})
	require.NoError(t, err)
	assert.Len(t, accepted.CompletionSecret, 32)
	assert.Len(t, accepted.Escrows, 2)
	assert.Equal(t, "accepted", accepted.Bounty.Status)
	assert.Equal(t, "issued", accepted.Bounty.EscrowStage)
	assert.NotEmpty(t, accepted.Bounty.Condition)
	require.NotNil(t, accepted.Bounty.CancelAfter)

	// Locked contributions leave the local balance
	funderNow, err := env.client.GetAccount(env.ctx, &GetAccountRequest{AccountId: funder.Id})
	require.NoError(t, err)
	assert.Equal(t, "300", funderNow.Account.Balance)

	contributions, err := env.client.ListContributions(env.ctx, &ListContributionsRequest{BountyId: opened.Bounty.Id})
	require.NoError(t, err)
	require.Len(t, contributions.Contributions, 2)
	for _, c := range contributions.Contributions {
		require.NotNil(t, c.Escrow)
		assert.Equal(t, "pending", c.Escrow.Status)
	}

	revealed, err := env.client.RevealSecret(env.ctx, &RevealSecretRequest{BountyId: opened.Bounty.Id, RequestedBy: dev.Id})
	require.NoError(t, err)
	assert.Equal(t, accepted.CompletionSecret, revealed.CompletionSecret)

	claimed, err := env.client.ClaimBounty(env.ctx, &ClaimBountyRequest{
		BountyId:    opened.Bounty.Id,
		DeveloperId: dev.Id,
		Evidence:    fmt.Sprintf("Fixes #12 with token %s", accepted.CompletionSecret),
	})
	require.NoError(t, err)
	assert.Equal(t, "250", claimed.Amount)
	assert.Equal(t, "claimed", claimed.Bounty.Status)
	assert.Len(t, claimed.Finished, 2)
	assert.Empty(t, claimed.Failed)

	devNow, err := env.client.GetAccount(env.ctx, &GetAccountRequest{AccountId: dev.Id})
	require.NoError(t, err)
	assert.Equal(t, "250", devNow.Account.Balance)
	assert.Equal(t, "250", devNow.Account.TotalEarned)
	assert.Equal(t, int32(1), devNow.Account.BountiesAccepted)

	stats, err := env.client.GetPlatformStats(env.ctx, &GetPlatformStatsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), stats.TotalAccounts)
	assert.Equal(t, int32(1), stats.StatusCounts["claimed"])
	assert.Equal(t, "250", stats.ClaimedAmount)
}

func TestServer_ErrorCodes(t *testing.T) {
	env := newGRPCEnv(t)
	funder := env.register(t, "funder", "500")
	dev := env.register(t, "dev", "")

	opened, err := env.client.OpenBounty(env.ctx, &OpenBountyRequest{
		FunderId: funder.Id,
		Title:    "Fix login",
		IssueUrl: issueURL,
		Amount:   "100",
	})
	require.NoError(t, err)
	bountyID := opened.Bounty.Id

	t.Run("Unknown Bounty", func(t *testing.T) {
		_, err := env.client.GetBounty(env.ctx, &GetBountyRequest{BountyId: uuid.NewString()})
		assertCode(t, err, codes.NotFound)
	})

	t.Run("Malformed ID", func(t *testing.T) {
		_, err := env.client.GetBounty(env.ctx, &GetBountyRequest{BountyId: "nope"})
		assertCode(t, err, codes.InvalidArgument)
	})

	t.Run("Malformed Amount", func(t *testing.T) {
		_, err := env.client.BoostBounty(env.ctx, &BoostBountyRequest{BountyId: bountyID, ContributorId: dev.Id, Amount: "ten"})
		assertCode(t, err, codes.InvalidArgument)
	})

	t.Run("Cancel By Stranger", func(t *testing.T) {
		_, err := env.client.CancelBounty(env.ctx, &CancelBountyRequest{BountyId: bountyID, RequestedBy: dev.Id})
		assertCode(t, err, codes.PermissionDenied)
	})

	t.Run("Claim Before Accept", func(t *testing.T) {
		_, err := env.client.ClaimBounty(env.ctx, &ClaimBountyRequest{BountyId: bountyID, Evidence: "Fixes #12"})
		assertCode(t, err, codes.FailedPrecondition)
	})

	t.Run("Missing Token", func(t *testing.T) {
		_, err := env.client.GetBounty(context.Background(), &GetBountyRequest{BountyId: bountyID})
		assertCode(t, err, codes.Unauthenticated)
	})

	accepted, err := env.client.AcceptBounty(env.ctx, &AcceptBountyRequest{BountyId: bountyID, DeveloperId: dev.Id})
	require.NoError(t, err)
	require.NotEmpty(t, accepted.CompletionSecret)

	t.Run("Evidence Without Secret", func(t *testing.T) {
		_, err := env.client.ClaimBounty(env.ctx, &ClaimBountyRequest{BountyId: bountyID, Evidence: "Fixes #12"})
		assertCode(t, err, codes.PermissionDenied)
	})

	t.Run("Boost After Accept", func(t *testing.T) {
		_, err := env.client.BoostBounty(env.ctx, &BoostBountyRequest{BountyId: bountyID, ContributorId: dev.Id, Amount: "5"})
		assertCode(t, err, codes.FailedPrecondition)
	})

	t.Run("Secret For Someone Else", func(t *testing.T) {
		_, err := env.client.RevealSecret(env.ctx, &RevealSecretRequest{BountyId: bountyID, RequestedBy: funder.Id})
		assertCode(t, err, codes.PermissionDenied)
	})
}

func TestServer_ClaimWithoutProgress(t *testing.T) {
	env := newGRPCEnv(t)
	funder := env.register(t, "funder", "500")
	dev := env.register(t, "dev", "")

	opened, err := env.client.OpenBounty(env.ctx, &OpenBountyRequest{
		FunderId: funder.Id,
		Title:    "Fix login",
		IssueUrl: issueURL,
		Amount:   "100",
	})
	require.NoError(t, err)
	accepted, err := env.client.AcceptBounty(env.ctx, &AcceptBountyRequest{BountyId: opened.Bounty.Id, DeveloperId: dev.Id})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		env.ledger.FailNext("finish", &domain.LedgerError{Op: "escrow_finish", Code: "terQUEUED", Kind: domain.LedgerTransient})
	}
	_, err = env.client.ClaimBounty(env.ctx, &ClaimBountyRequest{
		BountyId:    opened.Bounty.Id,
		DeveloperId: dev.Id,
		Evidence:    fmt.Sprintf("Fixes #12 with token %s", accepted.CompletionSecret),
	})
	assertCode(t, err, codes.Unavailable)

	current, err := env.client.GetBounty(env.ctx, &GetBountyRequest{BountyId: opened.Bounty.Id})
	require.NoError(t, err)
	assert.Equal(t, "accepted", current.Bounty.Status)
	assert.Equal(t, "issued", current.Bounty.EscrowStage)

	// The escrow is still pending, so a later claim goes through
	claimed, err := env.client.ClaimBounty(env.ctx, &ClaimBountyRequest{
		BountyId:    opened.Bounty.Id,
		DeveloperId: dev.Id,
		Evidence:    fmt.Sprintf("Fixes #12 with token %s", accepted.CompletionSecret),
	})
	require.NoError(t, err)
	assert.Equal(t, "claimed", claimed.Bounty.Status)
}

func TestServer_SecretsStayOutOfViews(t *testing.T) {
	env := newGRPCEnv(t)
	funder := env.register(t, "funder", "500")
	dev := env.register(t, "dev", "")

	opened, err := env.client.OpenBounty(env.ctx, &OpenBountyRequest{FunderId: funder.Id, Title: "T", IssueUrl: issueURL, Amount: "10"})
	require.NoError(t, err)
	accepted, err := env.client.AcceptBounty(env.ctx, &AcceptBountyRequest{BountyId: opened.Bounty.Id, DeveloperId: dev.Id})
	require.NoError(t, err)

	got, err := env.client.GetBounty(env.ctx, &GetBountyRequest{BountyId: opened.Bounty.Id})
	require.NoError(t, err)

	raw, err := jsonCodec{}.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), accepted.CompletionSecret)
	assert.NotContains(t, string(raw), "fulfillment")

	accounts, err := env.client.ListAccounts(env.ctx, &ListAccountsRequest{})
	require.NoError(t, err)
	raw, err = jsonCodec{}.Marshal(accounts)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sfunder")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"Not Found", fmt.Errorf("bounty x: %w", domain.ErrNotFound), codes.NotFound},
		{"Invalid Argument", fmt.Errorf("%w: amount", domain.ErrInvalidArgument), codes.InvalidArgument},
		{"Transition", &domain.TransitionError{Entity: "bounty", From: "open", To: "claim"}, codes.FailedPrecondition},
		{"Insufficient Funds", domain.ErrInsufficientFunds, codes.FailedPrecondition},
		{"Forbidden", domain.ErrForbidden, codes.PermissionDenied},
		{"Evidence Rejected", domain.ErrEvidenceRejected, codes.PermissionDenied},
		{"Ledger Transient", &domain.LedgerError{Op: "escrow_create", Kind: domain.LedgerTransient}, codes.Unavailable},
		{"Ledger Rejected", &domain.LedgerError{Op: "escrow_create", Kind: domain.LedgerUnfunded}, codes.FailedPrecondition},
		{"Conflict", domain.ErrConflict, codes.Aborted},
		{
			"Partial With Progress",
			&domain.PartialEscrowError{
				Phase:     domain.EscrowPhaseCreate,
				Succeeded: []uuid.UUID{uuid.New()},
				Failed:    []uuid.UUID{uuid.New()},
				Cause:     &domain.LedgerError{Op: "escrow_create", Kind: domain.LedgerTransient},
			},
			codes.Aborted,
		},
		{
			"Nothing Succeeded Transient",
			&domain.PartialEscrowError{
				Phase:  domain.EscrowPhaseFinish,
				Failed: []uuid.UUID{uuid.New()},
				Cause:  &domain.LedgerError{Op: "escrow_finish", Kind: domain.LedgerTransient},
			},
			codes.Unavailable,
		},
		{
			"Nothing Succeeded Rejected",
			&domain.PartialEscrowError{
				Phase:  domain.EscrowPhaseCreate,
				Failed: []uuid.UUID{uuid.New()},
				Cause:  &domain.LedgerError{Op: "escrow_create", Kind: domain.LedgerUnfunded},
			},
			codes.FailedPrecondition,
		},
		{"Unknown", errors.New("boom"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(mapError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.code, st.Code())
		})
	}

	assert.NoError(t, mapError(nil))
}
