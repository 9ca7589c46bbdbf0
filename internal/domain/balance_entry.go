package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryType represents the direction of a balance entry
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// EntryReason records why an account balance moved
type EntryReason string

const (
	ReasonEscrowLock  EntryReason = "escrow_lock"  // Contribution locked into a ledger escrow at acceptance
	ReasonClaimPayout EntryReason = "claim_payout" // Finished escrows credited to the developer
	ReasonDeposit     EntryReason = "deposit"
	ReasonLedgerSync  EntryReason = "ledger_sync" // Balance aligned with the ledger account
	ReasonAdjustment  EntryReason = "adjustment"
)

// BalanceEntry is the journal row written in the same atomic unit as every balance mutation
type BalanceEntry struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	BountyID     *uuid.UUID      // Set for escrow locks and claim payouts
	Amount       decimal.Decimal // ABSOLUTE VALUE (Always Positive)
	Type         EntryType
	Reason       EntryReason
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}

// BalanceChange describes a single debit or credit request against the Account Store
type BalanceChange struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Reason    EntryReason
	BountyID  *uuid.UUID
}

// Validate ensures the change can be applied
func (c BalanceChange) Validate() error {
	if c.AccountID == uuid.Nil {
		return errors.New("balance change must reference an account")
	}

	if c.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("balance change amount must be positive")
	}

	if c.Reason == "" {
		return errors.New("balance change must carry a reason")
	}

	return nil
}

// Validate ensures the entry adheres to domain rules
func (e *BalanceEntry) Validate() error {
	if e.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("entry amount must be positive (absolute value)")
	}

	if e.Type != EntryTypeDebit && e.Type != EntryTypeCredit {
		return errors.New("entry type must be DEBIT or CREDIT")
	}

	if e.Reason == "" {
		return errors.New("entry reason cannot be empty")
	}

	return nil
}

// Signed returns the entry amount with debits negated
func (e *BalanceEntry) Signed() decimal.Decimal {
	if e.Type == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}
