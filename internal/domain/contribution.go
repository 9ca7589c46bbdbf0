package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EscrowStatus is the state of a single contribution escrow on the ledger
type EscrowStatus string

const (
	EscrowStatusPending  EscrowStatus = "pending"
	EscrowStatusFinished EscrowStatus = "finished"
)

// Contribution is one pledge into a bounty pool. The funder's pledge is the seed contribution at position 0.
type Contribution struct {
	ID                 uuid.UUID
	BountyID           uuid.UUID
	ContributorID      uuid.UUID
	ContributorAddress string
	Amount             decimal.Decimal
	Position           int // Fixed escrow issuance order
	Escrow             *EscrowRecord
	CreatedAt          time.Time
}

// EscrowRecord holds the ledger identifiers of a contribution escrow
type EscrowRecord struct {
	TransferID       string
	Sequence         uint32 // Needed to finish or cancel the escrow
	Status           EscrowStatus
	Debited          bool // False when the ledger escrow exists but the local debit could not be applied
	FinishTransferID string
	CreatedAt        time.Time
	FinishedAt       *time.Time
}

// Validate ensures the contribution adheres to domain rules
func (c *Contribution) Validate() error {
	if c.BountyID == uuid.Nil {
		return errors.New("contribution must belong to a bounty")
	}

	if c.ContributorID == uuid.Nil {
		return errors.New("contribution must have a contributor")
	}

	if c.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("contribution amount must be positive")
	}

	if err := ValidateAmountScale(c.Amount); err != nil {
		return fmt.Errorf("contribution %w", err)
	}

	return nil
}

// HasEscrow reports whether a ledger escrow was recorded for the contribution
func (c *Contribution) HasEscrow() bool {
	return c.Escrow != nil
}

// IsFinished reports whether the contribution escrow was released
func (c *Contribution) IsFinished() bool {
	return c.Escrow != nil && c.Escrow.Status == EscrowStatusFinished
}

// SumContributions returns the total pledged amount
func SumContributions(contributions []*Contribution) decimal.Decimal {
	total := decimal.Zero
	for _, c := range contributions {
		total = total.Add(c.Amount)
	}
	return total
}

// EscrowSecrets holds the values that must never appear in a serialized bounty
type EscrowSecrets struct {
	BountyID         uuid.UUID
	Fulfillment      string // Preimage-based fulfillment released only when finishing escrows
	CompletionSecret string // Returned once to the developer, then only to them on request
}
