// Package reconcile compares bounty pools, escrows and the balance journal and reports divergence.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
	"github.com/simaogato/bountyflow-backend/internal/metrics"
)

// Anomaly types emitted by the reconciler.
const (
	AnomalyPoolMismatch     = "pool_mismatch"     // Pooled amount differs from the sum of contributions
	AnomalyDebitMismatch    = "debit_mismatch"    // Escrow lock debits differ from the escrowed contributions
	AnomalyMissingEscrow    = "missing_escrow"    // Issuance finished but a contribution has no escrow
	AnomalyUnfinishedEscrow = "unfinished_escrow" // Bounty claimed while an escrow is still pending on the ledger
	AnomalyDebitShortfall   = "debit_shortfall"   // Ledger escrow exists but the local debit was not applied
)

const sweepPageSize = 100

// AlertFunc is invoked for every anomaly reported
type AlertFunc func(ctx context.Context, anomaly Anomaly) error

// Anomaly captures a ledger consistency failure requiring operator review
type Anomaly struct {
	Type           string
	BountyID       uuid.UUID
	ContributionID *uuid.UUID
	AccountID      *uuid.UUID
	Expected       decimal.Decimal
	Actual         decimal.Decimal
	Details        string
	DetectedAt     time.Time
}

// Reconciler inspects bounties for divergence between pools, escrows and balances
type Reconciler struct {
	AccountRepo domain.AccountRepository
	BountyRepo  domain.BountyRepository
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Alert       AlertFunc
	Now         func() time.Time
}

// NewReconciler creates a new Reconciler instance
func NewReconciler(accountRepo domain.AccountRepository, bountyRepo domain.BountyRepository, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		AccountRepo: accountRepo,
		BountyRepo:  bountyRepo,
		Logger:      logging.OrDefault(logger),
		Metrics:     m,
		Now:         time.Now,
	}
}

// CheckBounty returns every anomaly found on one bounty. It never mutates state.
func (r *Reconciler) CheckBounty(ctx context.Context, bountyID uuid.UUID) ([]Anomaly, error) {
	bounty, err := r.BountyRepo.GetByID(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	contributions, err := r.BountyRepo.ListContributions(ctx, bountyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}

	now := r.Now().UTC()
	var anomalies []Anomaly

	pooled := domain.SumContributions(contributions)
	if !pooled.Equal(bounty.Amount) {
		anomalies = append(anomalies, Anomaly{
			Type:       AnomalyPoolMismatch,
			BountyID:   bounty.ID,
			Expected:   pooled,
			Actual:     bounty.Amount,
			Details:    domain.ErrPoolMismatch.Error(),
			DetectedAt: now,
		})
	}

	if bounty.Status != domain.BountyStatusAccepted && bounty.Status != domain.BountyStatusClaimed {
		return anomalies, nil
	}

	issuanceDone := bounty.Status == domain.BountyStatusClaimed || bounty.EscrowStage != domain.EscrowStageIssuing
	expectedDebits := make(map[uuid.UUID]decimal.Decimal)

	for _, c := range contributions {
		contributionID := c.ID
		contributorID := c.ContributorID

		if c.Escrow == nil {
			if issuanceDone {
				anomalies = append(anomalies, Anomaly{
					Type:           AnomalyMissingEscrow,
					BountyID:       bounty.ID,
					ContributionID: &contributionID,
					AccountID:      &contributorID,
					Expected:       c.Amount,
					Actual:         decimal.Zero,
					Details:        "contribution has no ledger escrow",
					DetectedAt:     now,
				})
			}
			continue
		}

		if c.Escrow.Debited {
			expectedDebits[c.ContributorID] = expectedDebits[c.ContributorID].Add(c.Amount)
		} else {
			anomalies = append(anomalies, Anomaly{
				Type:           AnomalyDebitShortfall,
				BountyID:       bounty.ID,
				ContributionID: &contributionID,
				AccountID:      &contributorID,
				Expected:       c.Amount,
				Actual:         decimal.Zero,
				Details:        fmt.Sprintf("escrow %s locked on the ledger without a local debit", c.Escrow.TransferID),
				DetectedAt:     now,
			})
		}

		if bounty.Status == domain.BountyStatusClaimed && !c.IsFinished() {
			anomalies = append(anomalies, Anomaly{
				Type:           AnomalyUnfinishedEscrow,
				BountyID:       bounty.ID,
				ContributionID: &contributionID,
				AccountID:      &contributorID,
				Expected:       c.Amount,
				Actual:         decimal.Zero,
				Details:        fmt.Sprintf("escrow %s still pending after claim", c.Escrow.TransferID),
				DetectedAt:     now,
			})
		}
	}

	for accountID, expected := range expectedDebits {
		actual, err := r.lockedAmount(ctx, accountID, bounty.ID)
		if err != nil {
			return nil, err
		}
		if !actual.Equal(expected) {
			id := accountID
			anomalies = append(anomalies, Anomaly{
				Type:       AnomalyDebitMismatch,
				BountyID:   bounty.ID,
				AccountID:  &id,
				Expected:   expected,
				Actual:     actual,
				Details:    "escrow lock debits differ from escrowed contributions",
				DetectedAt: now,
			})
		}
	}

	return anomalies, nil
}

// lockedAmount sums the escrow lock debits an account carries for one bounty
func (r *Reconciler) lockedAmount(ctx context.Context, accountID, bountyID uuid.UUID) (decimal.Decimal, error) {
	entries, err := r.AccountRepo.ListEntries(ctx, accountID, 0)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list balance entries: %w", err)
	}

	total := decimal.Zero
	for _, e := range entries {
		if e.Reason == domain.ReasonEscrowLock && e.BountyID != nil && *e.BountyID == bountyID {
			total = total.Add(e.Signed().Neg())
		}
	}
	return total, nil
}

// Report logs, counts and alerts every anomaly
func (r *Reconciler) Report(ctx context.Context, anomalies []Anomaly) {
	for _, a := range anomalies {
		attrs := []any{
			"type", a.Type,
			"bounty_id", a.BountyID,
			"expected", a.Expected.String(),
			"actual", a.Actual.String(),
			"details", a.Details,
		}
		if a.ContributionID != nil {
			attrs = append(attrs, "contribution_id", *a.ContributionID)
		}
		if a.AccountID != nil {
			attrs = append(attrs, "account_id", *a.AccountID)
		}
		r.Logger.Warn("reconciliation anomaly", attrs...)
		r.Metrics.IncReconEvent(a.Type)

		if r.Alert != nil {
			if err := r.Alert(ctx, a); err != nil {
				r.Logger.Error("reconciliation alert failed", "type", a.Type, "bounty_id", a.BountyID, "error", err)
			}
		}
	}
}

// CheckAndReport checks one bounty and reports what it finds
func (r *Reconciler) CheckAndReport(ctx context.Context, bountyID uuid.UUID) ([]Anomaly, error) {
	anomalies, err := r.CheckBounty(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	r.Report(ctx, anomalies)
	return anomalies, nil
}

// Sweep checks every accepted and claimed bounty
func (r *Reconciler) Sweep(ctx context.Context) ([]Anomaly, error) {
	var all []Anomaly
	for _, status := range []domain.BountyStatus{domain.BountyStatusAccepted, domain.BountyStatusClaimed} {
		for offset := 0; ; offset += sweepPageSize {
			if err := ctx.Err(); err != nil {
				return all, err
			}
			page, err := r.BountyRepo.List(ctx, domain.BountyFilter{Status: status, Limit: sweepPageSize, Offset: offset})
			if err != nil {
				return all, fmt.Errorf("failed to list %s bounties: %w", status, err)
			}
			for _, b := range page {
				anomalies, err := r.CheckAndReport(ctx, b.ID)
				if err != nil {
					return all, err
				}
				all = append(all, anomalies...)
			}
			if len(page) < sweepPageSize {
				break
			}
		}
	}

	r.Logger.Info("reconciliation sweep finished", "anomalies", len(all))
	return all, nil
}
