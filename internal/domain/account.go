package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents a participant that can fund, boost or complete bounties
type Account struct {
	ID         uuid.UUID
	Username   string
	Address    string          // Ledger address used as escrow source or destination
	Credential string          // Ledger signing seed. Never exposed through transport views.
	Balance    decimal.Decimal // Local spendable balance, never negative
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Aggregates computed on read from bounties, contributions and payouts.
	BountiesCreated  int
	BountiesAccepted int
	TotalFunded      decimal.Decimal
	TotalEarned      decimal.Decimal
}

// HasCredential reports whether the account can sign ledger transactions
func (a *Account) HasCredential() bool {
	return a.Credential != ""
}

// CanCover reports whether the local balance covers amount
func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// Validate ensures the account adheres to domain rules
func (a *Account) Validate() error {
	if a.Username == "" {
		return errors.New("account username cannot be empty")
	}

	if a.Address == "" {
		return errors.New("account address cannot be empty")
	}

	if a.Balance.IsNegative() {
		return errors.New("account balance cannot be negative")
	}

	return nil
}
