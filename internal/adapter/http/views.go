package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/usecase/dashboard"
	"github.com/simaogato/bountyflow-backend/internal/usecase/escrow"
	"github.com/simaogato/bountyflow-backend/internal/usecase/reconcile"
	"github.com/simaogato/bountyflow-backend/internal/usecase/release"
)

// Views never carry credentials, fulfillments or completion secrets, except acceptView which
// returns the completion secret once to the accepting developer.

type accountView struct {
	ID               uuid.UUID       `json:"id"`
	Username         string          `json:"username"`
	Address          string          `json:"address"`
	Balance          decimal.Decimal `json:"balance"`
	BountiesCreated  int             `json:"bounties_created"`
	BountiesAccepted int             `json:"bounties_accepted"`
	TotalFunded      decimal.Decimal `json:"total_funded"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func accountFromDomain(a *domain.Account) accountView {
	return accountView{
		ID:               a.ID,
		Username:         a.Username,
		Address:          a.Address,
		Balance:          a.Balance,
		BountiesCreated:  a.BountiesCreated,
		BountiesAccepted: a.BountiesAccepted,
		TotalFunded:      a.TotalFunded,
		TotalEarned:      a.TotalEarned,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type entryView struct {
	ID           uuid.UUID       `json:"id"`
	BountyID     *uuid.UUID      `json:"bounty_id,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	Reason       string          `json:"reason"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

func entryFromDomain(e *domain.BalanceEntry) entryView {
	return entryView{
		ID:           e.ID,
		BountyID:     e.BountyID,
		Amount:       e.Amount,
		Type:         string(e.Type),
		Reason:       string(e.Reason),
		BalanceAfter: e.BalanceAfter,
		CreatedAt:    e.CreatedAt,
	}
}

type bountyView struct {
	ID               uuid.UUID       `json:"id"`
	FunderID         uuid.UUID       `json:"funder_id"`
	FunderAddress    string          `json:"funder_address"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	IssueURL         string          `json:"issue_url"`
	Amount           decimal.Decimal `json:"amount"`
	TimeLimitSeconds int64           `json:"time_limit_seconds"`
	Status           string          `json:"status"`
	EscrowStage      string          `json:"escrow_stage"`
	DeveloperID      *uuid.UUID      `json:"developer_id,omitempty"`
	DeveloperAddress string          `json:"developer_address,omitempty"`
	Condition        string          `json:"condition,omitempty"`
	CancelAfter      *time.Time      `json:"cancel_after,omitempty"`
	ClaimedAmount    decimal.Decimal `json:"claimed_amount"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	AcceptedAt       *time.Time      `json:"accepted_at,omitempty"`
	ClaimedAt        *time.Time      `json:"claimed_at,omitempty"`
}

func bountyFromDomain(b *domain.Bounty) bountyView {
	return bountyView{
		ID:               b.ID,
		FunderID:         b.FunderID,
		FunderAddress:    b.FunderAddress,
		Title:            b.Title,
		Description:      b.Description,
		IssueURL:         b.IssueURL,
		Amount:           b.Amount,
		TimeLimitSeconds: int64(b.TimeLimit / time.Second),
		Status:           string(b.Status),
		EscrowStage:      string(b.EscrowStage),
		DeveloperID:      b.DeveloperID,
		DeveloperAddress: b.DeveloperAddress,
		Condition:        b.Condition,
		CancelAfter:      b.CancelAfter,
		ClaimedAmount:    b.ClaimedAmount,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
		AcceptedAt:       b.AcceptedAt,
		ClaimedAt:        b.ClaimedAt,
	}
}

func bountiesFromDomain(bounties []*domain.Bounty) []bountyView {
	out := make([]bountyView, 0, len(bounties))
	for _, b := range bounties {
		out = append(out, bountyFromDomain(b))
	}
	return out
}

type escrowRecordView struct {
	TransferID       string     `json:"transfer_id"`
	Sequence         uint32     `json:"sequence"`
	Status           string     `json:"status"`
	Debited          bool       `json:"debited"`
	FinishTransferID string     `json:"finish_transfer_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

type contributionView struct {
	ID                 uuid.UUID         `json:"id"`
	BountyID           uuid.UUID         `json:"bounty_id"`
	ContributorID      uuid.UUID         `json:"contributor_id"`
	ContributorAddress string            `json:"contributor_address"`
	Amount             decimal.Decimal   `json:"amount"`
	Position           int               `json:"position"`
	Escrow             *escrowRecordView `json:"escrow,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

func contributionFromDomain(c *domain.Contribution) contributionView {
	view := contributionView{
		ID:                 c.ID,
		BountyID:           c.BountyID,
		ContributorID:      c.ContributorID,
		ContributorAddress: c.ContributorAddress,
		Amount:             c.Amount,
		Position:           c.Position,
		CreatedAt:          c.CreatedAt,
	}
	if c.Escrow != nil {
		view.Escrow = &escrowRecordView{
			TransferID:       c.Escrow.TransferID,
			Sequence:         c.Escrow.Sequence,
			Status:           string(c.Escrow.Status),
			Debited:          c.Escrow.Debited,
			FinishTransferID: c.Escrow.FinishTransferID,
			CreatedAt:        c.Escrow.CreatedAt,
			FinishedAt:       c.Escrow.FinishedAt,
		}
	}
	return view
}

type anomalyView struct {
	Type           string          `json:"type"`
	BountyID       uuid.UUID       `json:"bounty_id"`
	ContributionID *uuid.UUID      `json:"contribution_id,omitempty"`
	AccountID      *uuid.UUID      `json:"account_id,omitempty"`
	Expected       decimal.Decimal `json:"expected"`
	Actual         decimal.Decimal `json:"actual"`
	Details        string          `json:"details,omitempty"`
	DetectedAt     time.Time       `json:"detected_at"`
}

func anomaliesFromDomain(anomalies []reconcile.Anomaly) []anomalyView {
	out := make([]anomalyView, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, anomalyView{
			Type:           a.Type,
			BountyID:       a.BountyID,
			ContributionID: a.ContributionID,
			AccountID:      a.AccountID,
			Expected:       a.Expected,
			Actual:         a.Actual,
			Details:        a.Details,
			DetectedAt:     a.DetectedAt,
		})
	}
	return out
}

type issuedEscrowView struct {
	ContributionID uuid.UUID       `json:"contribution_id"`
	ContributorID  uuid.UUID       `json:"contributor_id"`
	Amount         decimal.Decimal `json:"amount"`
	TransferID     string          `json:"transfer_id"`
	Sequence       uint32          `json:"sequence"`
	Debited        bool            `json:"debited"`
}

type acceptView struct {
	Bounty           bountyView         `json:"bounty"`
	CompletionSecret string             `json:"completion_secret"`
	Escrows          []issuedEscrowView `json:"escrows"`
	Anomalies        []anomalyView      `json:"anomalies,omitempty"`
}

func acceptFromResult(result *escrow.AcceptResult) acceptView {
	view := acceptView{
		Bounty:           bountyFromDomain(result.Bounty),
		CompletionSecret: result.CompletionSecret,
		Escrows:          make([]issuedEscrowView, 0, len(result.Escrows)),
	}
	for _, e := range result.Escrows {
		view.Escrows = append(view.Escrows, issuedEscrowView{
			ContributionID: e.ContributionID,
			ContributorID:  e.ContributorID,
			Amount:         e.Amount,
			TransferID:     e.TransferID,
			Sequence:       e.Sequence,
			Debited:        e.Debited,
		})
	}
	if len(result.Anomalies) > 0 {
		view.Anomalies = anomaliesFromDomain(result.Anomalies)
	}
	return view
}

type claimView struct {
	Bounty   bountyView      `json:"bounty"`
	Amount   decimal.Decimal `json:"amount"`
	Finished []uuid.UUID     `json:"finished"`
	Failed   []uuid.UUID     `json:"failed"`
	Skipped  []uuid.UUID     `json:"skipped"`
	Error    string          `json:"error,omitempty"`
}

func claimFromResult(result *release.ClaimResult, err error) claimView {
	view := claimView{
		Bounty:   bountyFromDomain(result.Bounty),
		Amount:   result.Amount,
		Finished: nonNil(result.Finished),
		Failed:   nonNil(result.Failed),
		Skipped:  nonNil(result.Skipped),
	}
	if err != nil {
		view.Error = err.Error()
	}
	return view
}

type partialView struct {
	Error     string      `json:"error"`
	Code      string      `json:"code"`
	BountyID  uuid.UUID   `json:"bounty_id"`
	Phase     string      `json:"phase"`
	Succeeded []uuid.UUID `json:"succeeded"`
	Failed    []uuid.UUID `json:"failed"`
	Skipped   []uuid.UUID `json:"skipped"`
	Pending   []uuid.UUID `json:"pending"`
}

func partialFromError(e *domain.PartialEscrowError, code string) partialView {
	return partialView{
		Error:     e.Error(),
		Code:      code,
		BountyID:  e.BountyID,
		Phase:     string(e.Phase),
		Succeeded: nonNil(e.Succeeded),
		Failed:    nonNil(e.Failed),
		Skipped:   nonNil(e.Skipped),
		Pending:   nonNil(e.Pending),
	}
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

type bountyStatsView struct {
	Total        int             `json:"total"`
	StatusCounts map[string]int  `json:"status_counts"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

func bountyStatsFromDomain(s dashboard.BountyStats) bountyStatsView {
	counts := make(map[string]int, len(s.StatusCounts))
	for status, n := range s.StatusCounts {
		counts[string(status)] = n
	}
	return bountyStatsView{Total: s.Total, StatusCounts: counts, TotalAmount: s.TotalAmount}
}

type platformStatsView struct {
	TotalAccounts  int             `json:"total_accounts"`
	Bounties       bountyStatsView `json:"bounties"`
	OpenAmount     decimal.Decimal `json:"open_amount"`
	ClaimedAmount  decimal.Decimal `json:"claimed_amount"`
	RecentBounties int             `json:"recent_bounties"`
	TotalFunded    decimal.Decimal `json:"total_funded"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
}

type userStatsView struct {
	AccountID        uuid.UUID       `json:"account_id"`
	BountiesCreated  int             `json:"bounties_created"`
	BountiesAccepted int             `json:"bounties_accepted"`
	TotalFunded      decimal.Decimal `json:"total_funded"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
}
