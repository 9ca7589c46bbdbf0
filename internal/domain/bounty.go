package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bounty represents a pooled payment offered for completing an external work item
type Bounty struct {
	ID            uuid.UUID
	FunderID      uuid.UUID
	FunderAddress string
	Title         string
	Description   string
	IssueURL      string          // Reference to the external work item
	Amount        decimal.Decimal // Pooled amount, always the sum of live contributions
	TimeLimit     time.Duration   // Requested escrow window, clamped at acceptance
	Status        BountyStatus
	EscrowStage   EscrowStage
	Version       int64 // Bumped on every mutation, used for compare-and-set

	// Set once accepted.
	DeveloperID      *uuid.UUID
	DeveloperAddress string
	Condition        string // Public escrow commitment shared by every contribution escrow
	CancelAfter      *time.Time

	ClaimedAmount decimal.Decimal // Sum of escrows actually finished on claim

	CreatedAt  time.Time
	UpdatedAt  time.Time
	AcceptedAt *time.Time
	ClaimedAt  *time.Time
}

// Validate ensures the bounty adheres to domain rules
func (b *Bounty) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return errors.New("bounty title cannot be empty")
	}

	if strings.TrimSpace(b.IssueURL) == "" {
		return errors.New("bounty issue URL cannot be empty")
	}

	if b.FunderID == uuid.Nil {
		return errors.New("bounty must have a funder")
	}

	if b.Amount.IsNegative() {
		return errors.New("bounty amount cannot be negative")
	}

	if !b.Status.Valid() {
		return errors.New("bounty status is not recognised")
	}

	if b.TimeLimit < 0 {
		return errors.New("bounty time limit cannot be negative")
	}

	return nil
}

// TransitionTo moves the bounty status if the transition table allows it
func (b *Bounty) TransitionTo(next BountyStatus) error {
	if !b.Status.CanTransitionTo(next) {
		return &TransitionError{Entity: "bounty", From: string(b.Status), To: string(next)}
	}
	b.Status = next
	return nil
}

// AdvanceStage moves the escrow stage if the stage table allows it.
// The stage only moves while the bounty is accepted.
func (b *Bounty) AdvanceStage(next EscrowStage) error {
	if b.Status != BountyStatusAccepted || !b.EscrowStage.CanTransitionTo(next) {
		return &TransitionError{Entity: "escrow stage", From: string(b.EscrowStage), To: string(next)}
	}
	b.EscrowStage = next
	return nil
}

// Require returns a TransitionError unless the bounty has the given status
func (b *Bounty) Require(status BountyStatus, op string) error {
	if b.Status != status {
		return &TransitionError{Entity: "bounty", From: string(b.Status), To: op}
	}
	return nil
}

// IsAssignedTo reports whether accountID is the accepted developer
func (b *Bounty) IsAssignedTo(accountID uuid.UUID) bool {
	return b.DeveloperID != nil && *b.DeveloperID == accountID
}
