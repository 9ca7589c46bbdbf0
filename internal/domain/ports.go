package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerService is the external ledger that holds conditional transfers.
// Implementations return *LedgerError so callers can tell terminal from transient failures.
type LedgerService interface {
	// AccountBalance returns the spendable ledger balance of address
	AccountBalance(ctx context.Context, address string) (decimal.Decimal, error)

	// CreateConditionalTransfer locks funds from the source towards the destination
	// until the fulfillment of Condition is presented or CancelAfter passes
	CreateConditionalTransfer(ctx context.Context, req ConditionalTransferRequest) (*ConditionalTransfer, error)

	// FinishConditionalTransfer releases a transfer created by OwnerAddress at Sequence
	FinishConditionalTransfer(ctx context.Context, req FinishTransferRequest) (*TransferReceipt, error)
}

// ConditionalTransferRequest describes one escrow to create
type ConditionalTransferRequest struct {
	SourceAddress      string
	SourceCredential   string
	DestinationAddress string
	Amount             decimal.Decimal
	Condition          string // Hex encoded crypto-condition
	CancelAfter        time.Time
}

// ConditionalTransfer identifies a created escrow
type ConditionalTransfer struct {
	TransferID string
	Sequence   uint32
}

// FinishTransferRequest describes one escrow to release
type FinishTransferRequest struct {
	OwnerAddress       string
	FinisherCredential string
	Sequence           uint32
	Condition          string
	Fulfillment        string // Hex encoded fulfillment matching Condition
}

// TransferReceipt identifies the finishing transaction
type TransferReceipt struct {
	TransferID string
}

// EvidenceOracle decides whether submitted evidence proves completion
type EvidenceOracle interface {
	// Check must confirm that evidenceRef references expectedItemRef and contains requiredSecret verbatim
	Check(ctx context.Context, evidenceRef, expectedItemRef, requiredSecret string) (bool, error)
}
