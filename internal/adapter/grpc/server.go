package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/usecase/account"
	"github.com/simaogato/bountyflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/bountyflow-backend/internal/usecase/escrow"
	"github.com/simaogato/bountyflow-backend/internal/usecase/pool"
	"github.com/simaogato/bountyflow-backend/internal/usecase/release"
)

// Server implements the BountyService gRPC server
type Server struct {
	AccountService   *account.AccountService
	PoolService      *pool.PoolService
	Coordinator      *escrow.Coordinator
	Gate             *release.Gate
	DashboardService *dashboard.DashboardService
}

var _ BountyServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	accountService *account.AccountService,
	poolService *pool.PoolService,
	coordinator *escrow.Coordinator,
	gate *release.Gate,
	dashboardService *dashboard.DashboardService,
) *Server {
	return &Server{
		AccountService:   accountService,
		PoolService:      poolService,
		Coordinator:      coordinator,
		Gate:             gate,
		DashboardService: dashboardService,
	}
}

// RegisterAccount handles the RegisterAccount RPC
func (s *Server) RegisterAccount(ctx context.Context, req *RegisterAccountRequest) (*AccountResponse, error) {
	initial := decimal.Zero
	if req.InitialBalance != "" {
		parsed, err := parseAmount("initial_balance", req.InitialBalance)
		if err != nil {
			return nil, err
		}
		initial = parsed
	}

	acct, err := s.AccountService.Register(ctx, account.RegisterInput{
		Username:       req.Username,
		Address:        req.Address,
		Credential:     req.Credential,
		InitialBalance: initial,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &AccountResponse{Account: accountToProto(acct)}, nil
}

// GetAccount handles the GetAccount RPC
func (s *Server) GetAccount(ctx context.Context, req *GetAccountRequest) (*AccountResponse, error) {
	id, err := parseID("account_id", req.AccountId)
	if err != nil {
		return nil, err
	}

	acct, err := s.AccountService.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &AccountResponse{Account: accountToProto(acct)}, nil
}

// ListAccounts handles the ListAccounts RPC
func (s *Server) ListAccounts(ctx context.Context, _ *ListAccountsRequest) (*ListAccountsResponse, error) {
	accounts, err := s.AccountService.List(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListAccountsResponse{Accounts: make([]*Account, 0, len(accounts))}
	for _, acct := range accounts {
		resp.Accounts = append(resp.Accounts, accountToProto(acct))
	}
	return resp, nil
}

// Deposit handles the Deposit RPC
func (s *Server) Deposit(ctx context.Context, req *DepositRequest) (*AccountResponse, error) {
	id, err := parseID("account_id", req.AccountId)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	acct, err := s.AccountService.Deposit(ctx, id, amount)
	if err != nil {
		return nil, mapError(err)
	}
	return &AccountResponse{Account: accountToProto(acct)}, nil
}

// SyncBalance handles the SyncBalance RPC
func (s *Server) SyncBalance(ctx context.Context, req *SyncBalanceRequest) (*AccountResponse, error) {
	id, err := parseID("account_id", req.AccountId)
	if err != nil {
		return nil, err
	}

	acct, err := s.AccountService.SyncBalance(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &AccountResponse{Account: accountToProto(acct)}, nil
}

// OpenBounty handles the OpenBounty RPC
func (s *Server) OpenBounty(ctx context.Context, req *OpenBountyRequest) (*BountyResponse, error) {
	funderID, err := parseID("funder_id", req.FunderId)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	bounty, err := s.PoolService.Open(ctx, pool.OpenInput{
		FunderID:    funderID,
		Title:       req.Title,
		Description: req.Description,
		IssueURL:    req.IssueUrl,
		Amount:      amount,
		TimeLimit:   time.Duration(req.TimeLimitSeconds) * time.Second,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &BountyResponse{Bounty: bountyToProto(bounty)}, nil
}

// BoostBounty handles the BoostBounty RPC
func (s *Server) BoostBounty(ctx context.Context, req *BoostBountyRequest) (*BountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}
	contributorID, err := parseID("contributor_id", req.ContributorId)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	bounty, err := s.PoolService.Boost(ctx, pool.BoostInput{
		BountyID:      bountyID,
		ContributorID: contributorID,
		Amount:        amount,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &BountyResponse{Bounty: bountyToProto(bounty)}, nil
}

// CancelBounty handles the CancelBounty RPC
func (s *Server) CancelBounty(ctx context.Context, req *CancelBountyRequest) (*BountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}
	requestedBy, err := parseID("requested_by", req.RequestedBy)
	if err != nil {
		return nil, err
	}

	bounty, err := s.PoolService.Cancel(ctx, bountyID, requestedBy)
	if err != nil {
		return nil, mapError(err)
	}
	return &BountyResponse{Bounty: bountyToProto(bounty)}, nil
}

// GetBounty handles the GetBounty RPC
func (s *Server) GetBounty(ctx context.Context, req *GetBountyRequest) (*BountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}

	bounty, err := s.PoolService.Get(ctx, bountyID)
	if err != nil {
		return nil, mapError(err)
	}
	return &BountyResponse{Bounty: bountyToProto(bounty)}, nil
}

// ListBounties handles the ListBounties RPC
func (s *Server) ListBounties(ctx context.Context, req *ListBountiesRequest) (*ListBountiesResponse, error) {
	filter := domain.BountyFilter{
		Status:           domain.BountyStatus(req.Status),
		TitleQuery:       req.Query,
		IssueURL:         req.IssueUrl,
		IncludeCancelled: req.IncludeCancelled,
		Limit:            int(req.Limit),
		Offset:           int(req.Offset),
	}

	var err error
	if filter.FunderID, err = parseOptionalID("funder_id", req.FunderId); err != nil {
		return nil, err
	}
	if filter.DeveloperID, err = parseOptionalID("developer_id", req.DeveloperId); err != nil {
		return nil, err
	}
	if filter.ContributorID, err = parseOptionalID("contributor_id", req.ContributorId); err != nil {
		return nil, err
	}
	if filter.MinAmount, err = parseOptionalAmount("min_amount", req.MinAmount); err != nil {
		return nil, err
	}
	if filter.MaxAmount, err = parseOptionalAmount("max_amount", req.MaxAmount); err != nil {
		return nil, err
	}

	bounties, err := s.PoolService.List(ctx, filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListBountiesResponse{Bounties: make([]*Bounty, 0, len(bounties))}
	for _, b := range bounties {
		resp.Bounties = append(resp.Bounties, bountyToProto(b))
	}
	return resp, nil
}

// ListContributions handles the ListContributions RPC
func (s *Server) ListContributions(ctx context.Context, req *ListContributionsRequest) (*ListContributionsResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}

	contributions, err := s.PoolService.Contributions(ctx, bountyID)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListContributionsResponse{Contributions: make([]*Contribution, 0, len(contributions))}
	for _, c := range contributions {
		resp.Contributions = append(resp.Contributions, contributionToProto(c))
	}
	return resp, nil
}

// AcceptBounty handles the AcceptBounty RPC
func (s *Server) AcceptBounty(ctx context.Context, req *AcceptBountyRequest) (*AcceptBountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}
	developerID, err := parseID("developer_id", req.DeveloperId)
	if err != nil {
		return nil, err
	}

	result, err := s.Coordinator.Accept(ctx, escrow.AcceptInput{
		BountyID:    bountyID,
		DeveloperID: developerID,
	})
	if err != nil {
		return nil, mapError(err)
	}
	return acceptResultToProto(result), nil
}

// ResumeAcceptance handles the ResumeAcceptance RPC
func (s *Server) ResumeAcceptance(ctx context.Context, req *ResumeAcceptanceRequest) (*AcceptBountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}

	result, err := s.Coordinator.Resume(ctx, bountyID)
	if err != nil {
		return nil, mapError(err)
	}
	return acceptResultToProto(result), nil
}

// ClaimBounty handles the ClaimBounty RPC.
// A settled claim with failed or skipped escrows still returns a response listing them.
func (s *Server) ClaimBounty(ctx context.Context, req *ClaimBountyRequest) (*ClaimBountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}
	var developerID uuid.UUID
	if req.DeveloperId != "" {
		if developerID, err = parseID("developer_id", req.DeveloperId); err != nil {
			return nil, err
		}
	}

	result, err := s.Gate.Claim(ctx, release.ClaimInput{
		BountyID:    bountyID,
		DeveloperID: developerID,
		Evidence:    req.Evidence,
	})
	if result == nil {
		return nil, mapError(err)
	}

	return &ClaimBountyResponse{
		Bounty:   bountyToProto(result.Bounty),
		Amount:   result.Amount.String(),
		Finished: idsToStrings(result.Finished),
		Failed:   idsToStrings(result.Failed),
		Skipped:  idsToStrings(result.Skipped),
	}, nil
}

// RevealSecret handles the RevealSecret RPC
func (s *Server) RevealSecret(ctx context.Context, req *RevealSecretRequest) (*RevealSecretResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}
	requestedBy, err := parseID("requested_by", req.RequestedBy)
	if err != nil {
		return nil, err
	}

	secret, err := s.Gate.RevealSecret(ctx, bountyID, requestedBy)
	if err != nil {
		return nil, mapError(err)
	}
	return &RevealSecretResponse{CompletionSecret: secret}, nil
}

// RecoverRelease handles the RecoverRelease RPC
func (s *Server) RecoverRelease(ctx context.Context, req *RecoverReleaseRequest) (*BountyResponse, error) {
	bountyID, err := parseID("bounty_id", req.BountyId)
	if err != nil {
		return nil, err
	}

	bounty, err := s.Gate.Recover(ctx, bountyID)
	if err != nil {
		return nil, mapError(err)
	}
	return &BountyResponse{Bounty: bountyToProto(bounty)}, nil
}

// GetPlatformStats handles the GetPlatformStats RPC
func (s *Server) GetPlatformStats(ctx context.Context, _ *GetPlatformStatsRequest) (*PlatformStatsResponse, error) {
	stats, err := s.DashboardService.GetPlatformStats(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	counts := make(map[string]int32, len(stats.Bounties.StatusCounts))
	for st, n := range stats.Bounties.StatusCounts {
		counts[string(st)] = int32(n)
	}

	return &PlatformStatsResponse{
		TotalAccounts:  int32(stats.TotalAccounts),
		TotalBounties:  int32(stats.Bounties.Total),
		StatusCounts:   counts,
		OpenAmount:     stats.OpenAmount.String(),
		ClaimedAmount:  stats.ClaimedAmount.String(),
		RecentBounties: int32(stats.RecentBounties),
		TotalFunded:    stats.TotalFunded.String(),
		TotalEarned:    stats.TotalEarned.String(),
	}, nil
}

func parseID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", field, err)
	}
	return id, nil
}

func parseOptionalID(field, value string) (*uuid.UUID, error) {
	if value == "" {
		return nil, nil
	}
	id, err := parseID(field, value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", field, err)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	amount, err := parseAmount(field, value)
	if err != nil {
		return nil, err
	}
	return &amount, nil
}

func timestampOrNil(t *time.Time) *timestamppb.Timestamp {
	if t == nil {
		return nil
	}
	return timestamppb.New(*t)
}

func idsToStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// accountToProto converts a domain Account to its transport view
func accountToProto(a *domain.Account) *Account {
	return &Account{
		Id:               a.ID.String(),
		Username:         a.Username,
		Address:          a.Address,
		Balance:          a.Balance.String(),
		BountiesCreated:  int32(a.BountiesCreated),
		BountiesAccepted: int32(a.BountiesAccepted),
		TotalFunded:      a.TotalFunded.String(),
		TotalEarned:      a.TotalEarned.String(),
		CreatedAt:        timestamppb.New(a.CreatedAt),
	}
}

// bountyToProto converts a domain Bounty to its transport view
func bountyToProto(b *domain.Bounty) *Bounty {
	out := &Bounty{
		Id:               b.ID.String(),
		FunderId:         b.FunderID.String(),
		FunderAddress:    b.FunderAddress,
		Title:            b.Title,
		Description:      b.Description,
		IssueUrl:         b.IssueURL,
		Amount:           b.Amount.String(),
		TimeLimitSeconds: int64(b.TimeLimit / time.Second),
		Status:           string(b.Status),
		EscrowStage:      string(b.EscrowStage),
		DeveloperAddress: b.DeveloperAddress,
		Condition:        b.Condition,
		ClaimedAmount:    b.ClaimedAmount.String(),
		CancelAfter:      timestampOrNil(b.CancelAfter),
		CreatedAt:        timestamppb.New(b.CreatedAt),
		UpdatedAt:        timestamppb.New(b.UpdatedAt),
		AcceptedAt:       timestampOrNil(b.AcceptedAt),
		ClaimedAt:        timestampOrNil(b.ClaimedAt),
	}
	if b.DeveloperID != nil {
		out.DeveloperId = b.DeveloperID.String()
	}
	return out
}

// contributionToProto converts a domain Contribution to its transport view
func contributionToProto(c *domain.Contribution) *Contribution {
	out := &Contribution{
		Id:                 c.ID.String(),
		BountyId:           c.BountyID.String(),
		ContributorId:      c.ContributorID.String(),
		ContributorAddress: c.ContributorAddress,
		Amount:             c.Amount.String(),
		Position:           int32(c.Position),
	}
	if c.Escrow != nil {
		out.Escrow = &EscrowRecord{
			TransferId:       c.Escrow.TransferID,
			Sequence:         c.Escrow.Sequence,
			Status:           string(c.Escrow.Status),
			Debited:          c.Escrow.Debited,
			FinishTransferId: c.Escrow.FinishTransferID,
			FinishedAt:       timestampOrNil(c.Escrow.FinishedAt),
		}
	}
	return out
}

func acceptResultToProto(result *escrow.AcceptResult) *AcceptBountyResponse {
	resp := &AcceptBountyResponse{
		Bounty:           bountyToProto(result.Bounty),
		CompletionSecret: result.CompletionSecret,
		Escrows:          make([]*IssuedEscrow, 0, len(result.Escrows)),
	}
	for _, e := range result.Escrows {
		resp.Escrows = append(resp.Escrows, &IssuedEscrow{
			ContributionId: e.ContributionID.String(),
			ContributorId:  e.ContributorID.String(),
			Amount:         e.Amount.String(),
			TransferId:     e.TransferID,
			Sequence:       e.Sequence,
			Debited:        e.Debited,
		})
	}
	for _, a := range result.Anomalies {
		resp.Anomalies = append(resp.Anomalies, &Anomaly{
			Type:     a.Type,
			Expected: a.Expected.String(),
			Actual:   a.Actual.String(),
			Details:  a.Details,
		})
	}
	return resp
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()

	// Partial progress is Aborted; with nothing done the cause decides the code
	var partial *domain.PartialEscrowError
	if errors.As(err, &partial) {
		if len(partial.Succeeded) > 0 || partial.Cause == nil {
			return status.Error(codes.Aborted, msg)
		}
		err = partial.Cause
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, domain.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrEvidenceRejected):
		return status.Error(codes.PermissionDenied, msg)
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrMissingCredential),
		errors.Is(err, domain.ErrPoolMismatch),
		errors.Is(err, domain.ErrLedgerRejected):
		return status.Error(codes.FailedPrecondition, msg)
	case errors.Is(err, domain.ErrLedgerTransient):
		return status.Error(codes.Unavailable, msg)
	case errors.Is(err, domain.ErrConflict):
		return status.Error(codes.Aborted, msg)
	}

	// Default to Internal error for unknown errors
	return status.Error(codes.Internal, msg)
}
