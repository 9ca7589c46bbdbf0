// Package release gates escrow release behind verified proof of completion.
package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
	"github.com/simaogato/bountyflow-backend/internal/retry"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
)

// ClaimInput represents the input for claiming a bounty
type ClaimInput struct {
	BountyID    uuid.UUID
	DeveloperID uuid.UUID // Optional; when set it must be the assigned developer
	Evidence    string    // Reference to the completed work, e.g. a pull request URL
}

// ClaimResult summarises a settled claim
type ClaimResult struct {
	Bounty   *domain.Bounty
	Amount   decimal.Decimal // Credited to the developer
	Finished []uuid.UUID
	Failed   []uuid.UUID
	Skipped  []uuid.UUID
}

// Gate handles the Proof-of-Completion operations
type Gate struct {
	AccountRepo domain.AccountRepository
	BountyRepo  domain.BountyRepository
	Ledger      domain.LedgerService
	Oracle      domain.EvidenceOracle
	Reconciler  *reconcile.Reconciler
	Retry       retry.Policy
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// NewGate creates a new Gate instance
func NewGate(
	accountRepo domain.AccountRepository,
	bountyRepo domain.BountyRepository,
	ledger domain.LedgerService,
	oracle domain.EvidenceOracle,
	reconciler *reconcile.Reconciler,
	retryPolicy retry.Policy,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Gate {
	return &Gate{
		AccountRepo: accountRepo,
		BountyRepo:  bountyRepo,
		Ledger:      ledger,
		Oracle:      oracle,
		Reconciler:  reconciler,
		Retry:       retryPolicy,
		Logger:      logging.OrDefault(logger),
		Metrics:     m,
		Now:         time.Now,
	}
}

// Claim verifies the evidence and releases every escrow of the bounty to the developer
// Logic:
//  1. Bounty must be accepted with all escrows issued
//  2. The oracle must confirm the evidence references the issue and carries the completion secret
//  3. Compare-and-set issued -> releasing so a concurrent claim fails
//  4. Finish every pending escrow with the shared fulfillment
//  5. Nothing finished: back to issued. Otherwise settle the finished amount in one unit.
func (g *Gate) Claim(ctx context.Context, input ClaimInput) (result *ClaimResult, err error) {
	defer func() { g.Metrics.ObserveOperation("claim", err) }()

	// 1. Fetch and check state
	bounty, err := g.BountyRepo.GetByID(ctx, input.BountyID)
	if err != nil {
		return nil, err
	}
	if err := bounty.Require(domain.BountyStatusAccepted, "claim"); err != nil {
		return nil, err
	}
	if bounty.EscrowStage != domain.EscrowStageIssued {
		return nil, &domain.TransitionError{Entity: "escrow stage", From: string(bounty.EscrowStage), To: "claim"}
	}
	if input.DeveloperID != uuid.Nil && !bounty.IsAssignedTo(input.DeveloperID) {
		return nil, fmt.Errorf("%w: only the assigned developer can claim", domain.ErrForbidden)
	}

	secrets, err := g.BountyRepo.GetSecrets(ctx, bounty.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow secrets: %w", err)
	}

	// 2. Verify evidence
	if err := g.verify(ctx, bounty, input.Evidence, secrets.CompletionSecret); err != nil {
		return nil, err
	}

	// 3. Compare-and-set
	releasing, err := g.BountyRepo.BeginRelease(ctx, bounty.ID)
	if err != nil {
		return nil, err
	}

	// 4. Finish escrows
	result, cause := g.finishAll(ctx, releasing, secrets.Fulfillment)

	// 5. Abort or settle
	if len(result.Finished) == 0 {
		if _, abortErr := g.BountyRepo.AbortRelease(ctx, bounty.ID); abortErr != nil {
			g.Logger.Error("failed to abort release", "bounty_id", bounty.ID, "error", abortErr)
		}
		if cause == nil {
			cause = errors.New("no escrow could be finished")
		}
		return nil, &domain.PartialEscrowError{
			BountyID: bounty.ID,
			Phase:    domain.EscrowPhaseFinish,
			Failed:   result.Failed,
			Skipped:  result.Skipped,
			Cause:    cause,
		}
	}

	developerID := uuid.Nil
	if releasing.DeveloperID != nil {
		developerID = *releasing.DeveloperID
	}
	claimed, err := g.BountyRepo.SettleClaim(ctx, domain.Settlement{
		BountyID:    bounty.ID,
		DeveloperID: developerID,
		Amount:      result.Amount,
		ClaimedAt:   g.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to settle claim: %w", err)
	}
	result.Bounty = claimed

	g.Logger.Info("bounty claimed",
		"bounty_id", claimed.ID,
		"developer_id", developerID,
		"amount", result.Amount.String(),
		"finished", len(result.Finished),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped),
	)

	if g.Reconciler != nil {
		if _, err := g.Reconciler.CheckAndReport(ctx, bounty.ID); err != nil {
			g.Logger.Error("post claim reconciliation failed", "bounty_id", bounty.ID, "error", err)
		}
	}

	if len(result.Failed) > 0 || len(result.Skipped) > 0 {
		return result, &domain.PartialEscrowError{
			BountyID:  bounty.ID,
			Phase:     domain.EscrowPhaseFinish,
			Succeeded: result.Finished,
			Failed:    result.Failed,
			Skipped:   result.Skipped,
			Cause:     cause,
		}
	}
	return result, nil
}

func (g *Gate) verify(ctx context.Context, bounty *domain.Bounty, evidence, secret string) error {
	if secret == "" {
		g.Metrics.ObserveOracleCheck("rejected")
		return fmt.Errorf("%w: bounty has no completion secret", domain.ErrEvidenceRejected)
	}

	ok, err := g.Oracle.Check(ctx, evidence, bounty.IssueURL, secret)
	if err != nil {
		g.Metrics.ObserveOracleCheck("error")
		return fmt.Errorf("failed to check evidence: %w", err)
	}
	if !ok {
		g.Metrics.ObserveOracleCheck("rejected")
		g.Logger.Info("evidence rejected", "bounty_id", bounty.ID, "evidence", evidence)
		return fmt.Errorf("%w: evidence must reference the issue and contain the completion secret", domain.ErrEvidenceRejected)
	}
	g.Metrics.ObserveOracleCheck("approved")
	return nil
}

// finishAll releases every pending escrow, returning the first ledger error seen
func (g *Gate) finishAll(ctx context.Context, bounty *domain.Bounty, fulfillment string) (*ClaimResult, error) {
	result := &ClaimResult{Amount: decimal.Zero}

	contributions, err := g.BountyRepo.ListContributions(ctx, bounty.ID)
	if err != nil {
		return result, fmt.Errorf("failed to list contributions: %w", err)
	}
	sort.SliceStable(contributions, func(i, j int) bool {
		return contributions[i].Position < contributions[j].Position
	})

	var cause error
	for _, c := range contributions {
		if c.IsFinished() {
			result.Finished = append(result.Finished, c.ID)
			result.Amount = result.Amount.Add(c.Amount)
			continue
		}
		if !c.HasEscrow() {
			result.Failed = append(result.Failed, c.ID)
			if cause == nil {
				cause = fmt.Errorf("contribution %s has no escrow: %w", c.ID, domain.ErrInvalidTransition)
			}
			continue
		}

		owner, err := g.AccountRepo.GetByID(ctx, c.ContributorID)
		if err != nil || !owner.HasCredential() {
			result.Skipped = append(result.Skipped, c.ID)
			g.Metrics.ObserveEscrow(string(domain.EscrowPhaseFinish), "skipped")
			g.Logger.Warn("escrow owner cannot sign, skipping", "bounty_id", bounty.ID, "contribution_id", c.ID)
			if cause == nil {
				cause = fmt.Errorf("contributor %s: %w", c.ContributorID, domain.ErrMissingCredential)
			}
			continue
		}

		receipt, err := g.finishOne(ctx, bounty, c, owner, fulfillment)
		if err != nil {
			result.Failed = append(result.Failed, c.ID)
			g.Metrics.ObserveEscrow(string(domain.EscrowPhaseFinish), "failed")
			g.Logger.Error("escrow finish failed", "bounty_id", bounty.ID, "contribution_id", c.ID, "error", err)
			if cause == nil {
				cause = err
			}
			continue
		}

		if err := g.BountyRepo.MarkEscrowFinished(ctx, c.ID, receipt.TransferID, g.Now().UTC()); err != nil {
			// Funds moved on the ledger; reconciliation reports the stale record
			g.Logger.Error("finished escrow could not be recorded",
				"bounty_id", bounty.ID,
				"contribution_id", c.ID,
				"transfer_id", receipt.TransferID,
				"error", err,
			)
		}
		g.Metrics.ObserveEscrow(string(domain.EscrowPhaseFinish), "finished")
		result.Finished = append(result.Finished, c.ID)
		result.Amount = result.Amount.Add(c.Amount)
	}
	return result, cause
}

func (g *Gate) finishOne(ctx context.Context, bounty *domain.Bounty, c *domain.Contribution, owner *domain.Account, fulfillment string) (*domain.TransferReceipt, error) {
	request := domain.FinishTransferRequest{
		OwnerAddress:       c.ContributorAddress,
		FinisherCredential: owner.Credential,
		Sequence:           c.Escrow.Sequence,
		Condition:          bounty.Condition,
		Fulfillment:        fulfillment,
	}
	if request.OwnerAddress == "" {
		request.OwnerAddress = owner.Address
	}

	var receipt *domain.TransferReceipt
	err := retry.Do(ctx, g.Retry, domain.IsLedgerTransient, func(ctx context.Context) error {
		started := time.Now()
		var callErr error
		receipt, callErr = g.Ledger.FinishConditionalTransfer(ctx, request)
		g.Metrics.ObserveLedgerCall("escrow_finish", started, callErr)
		return callErr
	}, func(err error, attempt int, wait time.Duration) {
		g.Metrics.IncLedgerRetry("escrow_finish")
		g.Logger.Warn("escrow finish failed, retrying", "contribution_id", c.ID, "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RevealSecret returns the completion secret to the assigned developer only
func (g *Gate) RevealSecret(ctx context.Context, bountyID, requestedBy uuid.UUID) (string, error) {
	bounty, err := g.BountyRepo.GetByID(ctx, bountyID)
	if err != nil {
		return "", err
	}
	if !bounty.IsAssignedTo(requestedBy) {
		return "", fmt.Errorf("%w: only the assigned developer can read the completion secret", domain.ErrForbidden)
	}

	secrets, err := g.BountyRepo.GetSecrets(ctx, bountyID)
	if err != nil {
		return "", err
	}
	if secrets.CompletionSecret == "" {
		return "", fmt.Errorf("completion secret for bounty %s: %w", bountyID, domain.ErrNotFound)
	}
	return secrets.CompletionSecret, nil
}

// Recover moves a bounty stuck in the releasing stage back to issued so the claim can be retried
func (g *Gate) Recover(ctx context.Context, bountyID uuid.UUID) (bounty *domain.Bounty, err error) {
	defer func() { g.Metrics.ObserveOperation("recover", err) }()

	bounty, err = g.BountyRepo.AbortRelease(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	g.Logger.Warn("release recovered", "bounty_id", bountyID)
	return bounty, nil
}
