package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountRepository defines the Account Store.
// Every balance mutation is atomic per account and writes a BalanceEntry in the same unit.
type AccountRepository interface {
	// Create creates a new account. Returns ErrConflict if the username or address is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account with its derived aggregates
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// GetByAddress retrieves an account by ledger address
	GetByAddress(ctx context.Context, address string) (*Account, error)

	// List retrieves all accounts ordered by creation time
	List(ctx context.Context) ([]*Account, error)

	// Debit removes change.Amount from the balance and returns the new balance.
	// Returns ErrInsufficientFunds without mutating anything if the balance is too low.
	Debit(ctx context.Context, change BalanceChange) (decimal.Decimal, error)

	// Credit adds change.Amount to the balance and returns the new balance
	Credit(ctx context.Context, change BalanceChange) (decimal.Decimal, error)

	// SetBalance overwrites the balance, journaling the difference under reason
	SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, reason EntryReason) (decimal.Decimal, error)

	// ListEntries retrieves the newest balance entries of an account first
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*BalanceEntry, error)
}

// BountyFilter narrows bounty listings. Zero values mean no filter.
type BountyFilter struct {
	Status           BountyStatus
	FunderID         *uuid.UUID
	DeveloperID      *uuid.UUID
	ContributorID    *uuid.UUID
	TitleQuery       string // Case-insensitive substring of title or description
	IssueURL         string // Case-insensitive substring of the issue URL
	MinAmount        *decimal.Decimal
	MaxAmount        *decimal.Decimal
	CreatedAfter     *time.Time
	IncludeCancelled bool // Cancelled bounties are hidden unless Status asks for them
	Limit            int
	Offset           int
}

// AcceptanceTicket carries everything BeginAcceptance writes atomically
type AcceptanceTicket struct {
	BountyID         uuid.UUID
	ExpectedVersion  int64
	DeveloperID      uuid.UUID
	DeveloperAddress string
	Condition        string
	Fulfillment      string
	CancelAfter      time.Time
	AcceptedAt       time.Time
}

// EscrowLock records a created ledger escrow against its contribution
type EscrowLock struct {
	BountyID       uuid.UUID
	ContributionID uuid.UUID
	Record         EscrowRecord
	Debit          bool // Debit the contributor by the contribution amount in the same unit
}

// Settlement finalizes a claim
type Settlement struct {
	BountyID    uuid.UUID
	DeveloperID uuid.UUID
	Amount      decimal.Decimal // Sum of finished escrows, may be less than the pooled amount
	ClaimedAt   time.Time
}

// BountyRepository defines bounty and contribution persistence.
// Every state change is a compare-and-set performed in one atomic unit with its side effects.
type BountyRepository interface {
	// Create creates an open bounty together with its seed contribution
	Create(ctx context.Context, bounty *Bounty, seed *Contribution) error

	// GetByID retrieves a bounty. Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*Bounty, error)

	// List retrieves bounties newest first
	List(ctx context.Context, filter BountyFilter) ([]*Bounty, error)

	// ListContributions retrieves the live contributions of a bounty ordered by position
	ListContributions(ctx context.Context, bountyID uuid.UUID) ([]*Contribution, error)

	// AddContribution appends a contribution while the bounty is open and grows the pool.
	// Returns ErrInvalidTransition if the bounty left open.
	AddContribution(ctx context.Context, contribution *Contribution) (*Bounty, error)

	// Cancel moves an open bounty to cancelled and deletes its contributions
	Cancel(ctx context.Context, id uuid.UUID) (*Bounty, error)

	// BeginAcceptance moves open -> accepted with stage issuing and stores the commitment.
	// Returns ErrConflict if the bounty version changed since it was read.
	BeginAcceptance(ctx context.Context, ticket AcceptanceTicket) (*Bounty, error)

	// RecordEscrow attaches a ledger escrow to a contribution while the stage is issuing,
	// optionally debiting the contributor in the same unit
	RecordEscrow(ctx context.Context, lock EscrowLock) (*Contribution, error)

	// CompleteAcceptance moves stage issuing -> issued and stores the completion secret
	CompleteAcceptance(ctx context.Context, id uuid.UUID, completionSecret string) (*Bounty, error)

	// BeginRelease moves stage issued -> releasing, guarding against concurrent claims
	BeginRelease(ctx context.Context, id uuid.UUID) (*Bounty, error)

	// AbortRelease moves stage releasing -> issued
	AbortRelease(ctx context.Context, id uuid.UUID) (*Bounty, error)

	// MarkEscrowFinished records a released escrow
	MarkEscrowFinished(ctx context.Context, contributionID uuid.UUID, finishTransferID string, finishedAt time.Time) error

	// SettleClaim credits the developer and moves the bounty to claimed in one unit
	SettleClaim(ctx context.Context, settlement Settlement) (*Bounty, error)

	// GetSecrets retrieves the fulfillment and completion secret of an accepted bounty
	GetSecrets(ctx context.Context, bountyID uuid.UUID) (*EscrowSecrets, error)
}
