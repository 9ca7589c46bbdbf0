// Package escrow turns a frozen contribution pool into ledger escrows sharing one commitment.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/cryptocondition"
	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
	"github.com/simaogato/bountyflow-backend/internal/retry"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
)

// Policy holds the acceptance rules
type Policy struct {
	DefaultTimeLimit  time.Duration
	MinTimeLimit      time.Duration
	MaxTimeLimit      time.Duration
	LedgerPrecheck    bool            // Also require ledger balances to cover pledges
	ReserveMinimum    decimal.Decimal // Ledger balance that must remain untouched
	FeeMargin         decimal.Decimal // Per escrow transaction fee allowance
	MaxAcceptAttempts int
	Retry             retry.Policy
}

// DefaultPolicy returns the production acceptance rules
func DefaultPolicy() Policy {
	return Policy{
		DefaultTimeLimit:  24 * time.Hour,
		MinTimeLimit:      10 * time.Minute,
		MaxTimeLimit:      30 * 24 * time.Hour,
		ReserveMinimum:    decimal.NewFromInt(20),
		FeeMargin:         decimal.RequireFromString("0.01"),
		MaxAcceptAttempts: 3,
		Retry:             retry.DefaultPolicy(),
	}
}

// ClampTimeLimit bounds the requested window, substituting the default for zero
func (p Policy) ClampTimeLimit(requested time.Duration) time.Duration {
	limit := requested
	if limit <= 0 {
		limit = p.DefaultTimeLimit
	}
	if p.MinTimeLimit > 0 && limit < p.MinTimeLimit {
		limit = p.MinTimeLimit
	}
	if p.MaxTimeLimit > 0 && limit > p.MaxTimeLimit {
		limit = p.MaxTimeLimit
	}
	return limit
}

// AcceptInput represents the input for accepting a bounty
type AcceptInput struct {
	BountyID    uuid.UUID
	DeveloperID uuid.UUID
}

// IssuedEscrow describes one contribution escrow standing on the ledger
type IssuedEscrow struct {
	ContributionID uuid.UUID
	ContributorID  uuid.UUID
	Amount         decimal.Decimal
	TransferID     string
	Sequence       uint32
	Debited        bool
}

// AcceptResult is returned once, when issuance completes
type AcceptResult struct {
	Bounty           *domain.Bounty
	CompletionSecret string
	Escrows          []IssuedEscrow
	Anomalies        []reconcile.Anomaly
}

// Coordinator handles the Escrow Coordinator operations
type Coordinator struct {
	AccountRepo domain.AccountRepository
	BountyRepo  domain.BountyRepository
	Ledger      domain.LedgerService
	Reconciler  *reconcile.Reconciler
	Policy      Policy
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// NewCoordinator creates a new Coordinator instance
func NewCoordinator(
	accountRepo domain.AccountRepository,
	bountyRepo domain.BountyRepository,
	ledger domain.LedgerService,
	reconciler *reconcile.Reconciler,
	policy Policy,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Coordinator {
	if policy.MaxAcceptAttempts < 1 {
		policy.MaxAcceptAttempts = 1
	}
	return &Coordinator{
		AccountRepo: accountRepo,
		BountyRepo:  bountyRepo,
		Ledger:      ledger,
		Reconciler:  reconciler,
		Policy:      policy,
		Logger:      logging.OrDefault(logger),
		Metrics:     m,
		Now:         time.Now,
	}
}

// Accept locks the pool, issues one escrow per contribution and returns the completion secret
// Logic:
//  1. Snapshot the open bounty and its contributions
//  2. Precheck every contributor; any failure aborts before a ledger escrow is created
//  3. Generate the shared condition and the escrow window
//  4. Compare-and-set open -> accepted against the snapshot version, retrying on a concurrent boost
//  5. Issue escrows in position order
func (c *Coordinator) Accept(ctx context.Context, input AcceptInput) (result *AcceptResult, err error) {
	defer func() { c.Metrics.ObserveOperation("accept", err) }()

	developer, err := c.AccountRepo.GetByID(ctx, input.DeveloperID)
	if err != nil {
		return nil, fmt.Errorf("developer: %w", err)
	}

	var accepted *domain.Bounty
	for attempt := 1; ; attempt++ {
		// 1. Snapshot
		bounty, err := c.BountyRepo.GetByID(ctx, input.BountyID)
		if err != nil {
			return nil, err
		}
		if err := bounty.Require(domain.BountyStatusOpen, "accept"); err != nil {
			return nil, err
		}
		contributions, err := c.BountyRepo.ListContributions(ctx, bounty.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list contributions: %w", err)
		}
		if len(contributions) == 0 {
			return nil, fmt.Errorf("%w: bounty %s has no contributions", domain.ErrInvalidTransition, bounty.ID)
		}

		// 2. Precheck
		if err := c.precheck(ctx, contributions); err != nil {
			return nil, err
		}

		// 3. Commitment and window
		commitment, err := cryptocondition.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate condition: %w", err)
		}
		now := c.Now().UTC()

		// 4. Compare-and-set
		accepted, err = c.BountyRepo.BeginAcceptance(ctx, domain.AcceptanceTicket{
			BountyID:         bounty.ID,
			ExpectedVersion:  bounty.Version,
			DeveloperID:      developer.ID,
			DeveloperAddress: developer.Address,
			Condition:        commitment.ConditionHex(),
			Fulfillment:      commitment.FulfillmentHex(),
			CancelAfter:      now.Add(c.Policy.ClampTimeLimit(bounty.TimeLimit)),
			AcceptedAt:       now,
		})
		if errors.Is(err, domain.ErrConflict) && attempt < c.Policy.MaxAcceptAttempts {
			c.Logger.Info("bounty changed during acceptance, retrying", "bounty_id", bounty.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}

	c.Logger.Info("bounty accepted",
		"bounty_id", accepted.ID,
		"developer_id", developer.ID,
		"cancel_after", accepted.CancelAfter,
	)

	// 5. Issue
	return c.issue(ctx, accepted)
}

// Resume continues issuance of a bounty left in the issuing stage by a partial failure.
// Contributions that already carry an escrow are kept; the shared condition is reused.
func (c *Coordinator) Resume(ctx context.Context, bountyID uuid.UUID) (result *AcceptResult, err error) {
	defer func() { c.Metrics.ObserveOperation("resume", err) }()

	bounty, err := c.BountyRepo.GetByID(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	if err := bounty.Require(domain.BountyStatusAccepted, "resume"); err != nil {
		return nil, err
	}
	if bounty.EscrowStage != domain.EscrowStageIssuing {
		return nil, &domain.TransitionError{Entity: "escrow stage", From: string(bounty.EscrowStage), To: "resume"}
	}
	if bounty.CancelAfter != nil && !bounty.CancelAfter.After(c.Now()) {
		return nil, fmt.Errorf("%w: escrow window of bounty %s has expired", domain.ErrInvalidTransition, bounty.ID)
	}

	c.Logger.Info("resuming escrow issuance", "bounty_id", bounty.ID)
	return c.issue(ctx, bounty)
}

// precheck validates every pledge amount and every contributor against the sum of its pledges
func (c *Coordinator) precheck(ctx context.Context, contributions []*domain.Contribution) error {
	for _, contribution := range contributions {
		if err := domain.ValidateAmountScale(contribution.Amount); err != nil {
			return fmt.Errorf("%w: contribution %s: %v", domain.ErrInvalidArgument, contribution.ID, err)
		}
	}

	totals := make(map[uuid.UUID]decimal.Decimal)
	counts := make(map[uuid.UUID]int64)
	order := make([]uuid.UUID, 0)
	for _, contribution := range contributions {
		if _, seen := totals[contribution.ContributorID]; !seen {
			order = append(order, contribution.ContributorID)
			totals[contribution.ContributorID] = decimal.Zero
		}
		totals[contribution.ContributorID] = totals[contribution.ContributorID].Add(contribution.Amount)
		counts[contribution.ContributorID]++
	}

	for _, accountID := range order {
		account, err := c.AccountRepo.GetByID(ctx, accountID)
		if err != nil {
			return fmt.Errorf("contributor %s: %w", accountID, err)
		}
		if !account.HasCredential() {
			return fmt.Errorf("contributor %s: %w", account.Username, domain.ErrMissingCredential)
		}

		total := totals[accountID]
		if !account.CanCover(total) {
			return fmt.Errorf("contributor %s balance %s cannot cover %s: %w",
				account.Username, account.Balance.String(), total.String(), domain.ErrInsufficientFunds)
		}

		if !c.Policy.LedgerPrecheck {
			continue
		}
		ledgerBalance, err := c.Ledger.AccountBalance(ctx, account.Address)
		if err != nil {
			return fmt.Errorf("contributor %s ledger balance: %w", account.Username, err)
		}
		required := total.
			Add(c.Policy.FeeMargin.Mul(decimal.NewFromInt(counts[accountID]))).
			Add(c.Policy.ReserveMinimum)
		if ledgerBalance.LessThan(required) {
			return fmt.Errorf("contributor %s ledger balance %s below required %s: %w",
				account.Username, ledgerBalance.String(), required.String(), domain.ErrInsufficientFunds)
		}
	}
	return nil
}

// issue creates the missing escrows in position order and completes acceptance once all exist
func (c *Coordinator) issue(ctx context.Context, bounty *domain.Bounty) (*AcceptResult, error) {
	contributions, err := c.BountyRepo.ListContributions(ctx, bounty.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].Position < contributions[j].Position
	})

	var (
		issued     []IssuedEscrow
		succeeded  []uuid.UUID
		shortfalls []uuid.UUID
	)

	for i, contribution := range contributions {
		if contribution.HasEscrow() {
			succeeded = append(succeeded, contribution.ID)
			issued = append(issued, issuedFrom(contribution))
			continue
		}

		recorded, shortfall, err := c.issueOne(ctx, bounty, contribution)
		if err != nil {
			pending := make([]uuid.UUID, 0, len(contributions)-i-1)
			for _, rest := range contributions[i+1:] {
				if !rest.HasEscrow() {
					pending = append(pending, rest.ID)
				}
			}
			partial := &domain.PartialEscrowError{
				BountyID:  bounty.ID,
				Phase:     domain.EscrowPhaseCreate,
				Succeeded: succeeded,
				Failed:    []uuid.UUID{contribution.ID},
				Pending:   pending,
				Cause:     err,
			}
			c.Logger.Error("escrow issuance stopped",
				"bounty_id", bounty.ID,
				"contribution_id", contribution.ID,
				"succeeded", len(succeeded),
				"pending", len(pending),
				"error", err,
			)
			return nil, partial
		}

		succeeded = append(succeeded, recorded.ID)
		issued = append(issued, issuedFrom(recorded))
		if shortfall {
			shortfalls = append(shortfalls, recorded.ID)
		}
	}

	secret, err := newCompletionSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate completion secret: %w", err)
	}
	completed, err := c.BountyRepo.CompleteAcceptance(ctx, bounty.ID, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to complete acceptance: %w", err)
	}

	result := &AcceptResult{
		Bounty:           completed,
		CompletionSecret: secret,
		Escrows:          issued,
	}

	if c.Reconciler != nil {
		anomalies, err := c.Reconciler.CheckAndReport(ctx, bounty.ID)
		if err != nil {
			c.Logger.Error("post acceptance reconciliation failed", "bounty_id", bounty.ID, "error", err)
		}
		result.Anomalies = anomalies
	}

	c.Logger.Info("escrows issued",
		"bounty_id", bounty.ID,
		"escrows", len(issued),
		"debit_shortfalls", len(shortfalls),
	)
	return result, nil
}

// issueOne creates one ledger escrow and records it together with the contributor debit.
// When the debit can no longer be applied the escrow is recorded without it.
func (c *Coordinator) issueOne(ctx context.Context, bounty *domain.Bounty, contribution *domain.Contribution) (*domain.Contribution, bool, error) {
	owner, err := c.AccountRepo.GetByID(ctx, contribution.ContributorID)
	if err != nil {
		return nil, false, fmt.Errorf("contributor %s: %w", contribution.ContributorID, err)
	}
	if !owner.HasCredential() {
		return nil, false, fmt.Errorf("contributor %s: %w", owner.Username, domain.ErrMissingCredential)
	}

	request := domain.ConditionalTransferRequest{
		SourceAddress:      contribution.ContributorAddress,
		SourceCredential:   owner.Credential,
		DestinationAddress: bounty.DeveloperAddress,
		Amount:             contribution.Amount,
		Condition:          bounty.Condition,
	}
	if request.SourceAddress == "" {
		request.SourceAddress = owner.Address
	}
	if bounty.CancelAfter != nil {
		request.CancelAfter = *bounty.CancelAfter
	}

	var transfer *domain.ConditionalTransfer
	err = retry.Do(ctx, c.Policy.Retry, domain.IsLedgerTransient, func(ctx context.Context) error {
		started := time.Now()
		var callErr error
		transfer, callErr = c.Ledger.CreateConditionalTransfer(ctx, request)
		c.Metrics.ObserveLedgerCall("escrow_create", started, callErr)
		return callErr
	}, func(err error, attempt int, wait time.Duration) {
		c.Metrics.IncLedgerRetry("escrow_create")
		c.Logger.Warn("escrow create failed, retrying",
			"bounty_id", bounty.ID,
			"contribution_id", contribution.ID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		c.Metrics.ObserveEscrow(string(domain.EscrowPhaseCreate), "failed")
		return nil, false, err
	}

	lock := domain.EscrowLock{
		BountyID:       bounty.ID,
		ContributionID: contribution.ID,
		Record: domain.EscrowRecord{
			TransferID: transfer.TransferID,
			Sequence:   transfer.Sequence,
			Status:     domain.EscrowStatusPending,
			CreatedAt:  c.Now().UTC(),
		},
		Debit: true,
	}

	recorded, err := c.BountyRepo.RecordEscrow(ctx, lock)
	shortfall := false
	if errors.Is(err, domain.ErrInsufficientFunds) {
		lock.Debit = false
		shortfall = true
		recorded, err = c.BountyRepo.RecordEscrow(ctx, lock)
	}
	if err != nil {
		// The escrow stands on the ledger but is unknown locally
		c.Logger.Error("ledger escrow could not be recorded",
			"bounty_id", bounty.ID,
			"contribution_id", contribution.ID,
			"transfer_id", transfer.TransferID,
			"sequence", transfer.Sequence,
			"error", err,
		)
		c.Metrics.ObserveEscrow(string(domain.EscrowPhaseCreate), "unrecorded")
		return nil, false, fmt.Errorf("failed to record escrow %s: %w", transfer.TransferID, err)
	}

	outcome := "created"
	if shortfall {
		outcome = "debit_shortfall"
		c.Logger.Warn("escrow recorded without local debit",
			"bounty_id", bounty.ID,
			"contribution_id", contribution.ID,
			"contributor_id", contribution.ContributorID,
			"amount", contribution.Amount.String(),
		)
	}
	c.Metrics.ObserveEscrow(string(domain.EscrowPhaseCreate), outcome)
	return recorded, shortfall, nil
}

func issuedFrom(contribution *domain.Contribution) IssuedEscrow {
	return IssuedEscrow{
		ContributionID: contribution.ID,
		ContributorID:  contribution.ContributorID,
		Amount:         contribution.Amount,
		TransferID:     contribution.Escrow.TransferID,
		Sequence:       contribution.Escrow.Sequence,
		Debited:        contribution.Escrow.Debited,
	}
}
