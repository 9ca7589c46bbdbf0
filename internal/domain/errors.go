package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors shared by every layer. Adapters map them with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid state transition")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrLedgerRejected       = errors.New("ledger rejected the transaction")
	ErrLedgerTransient      = errors.New("ledger temporarily unavailable")
	ErrEvidenceRejected     = errors.New("evidence rejected")
	ErrPartialEscrowFailure = errors.New("partial escrow failure")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("concurrent modification")
	ErrMissingCredential    = errors.New("account has no signing credential")
	ErrPoolMismatch         = errors.New("pooled amount does not match contributions")
)

// EscrowPhase names the saga step a partial failure happened in
type EscrowPhase string

const (
	EscrowPhaseCreate EscrowPhase = "create"
	EscrowPhaseFinish EscrowPhase = "finish"
)

// PartialEscrowError reports which contributions made it through an escrow phase.
// It matches ErrPartialEscrowFailure and the underlying cause.
type PartialEscrowError struct {
	BountyID  uuid.UUID
	Phase     EscrowPhase
	Succeeded []uuid.UUID // Contributions whose escrow was created or finished
	Failed    []uuid.UUID // Contributions whose ledger call failed
	Skipped   []uuid.UUID // Finish phase only: owners without a usable credential
	Pending   []uuid.UUID // Create phase only: contributions never attempted
	Cause     error
}

func (e *PartialEscrowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "partial escrow failure during %s for bounty %s: %d succeeded, %d failed",
		e.Phase, e.BountyID, len(e.Succeeded), len(e.Failed))
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(e.Skipped))
	}
	if len(e.Pending) > 0 {
		fmt.Fprintf(&b, ", %d pending", len(e.Pending))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *PartialEscrowError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPartialEscrowFailure}
	}
	return []error{ErrPartialEscrowFailure, e.Cause}
}

// LedgerErrorKind classifies a ledger failure
type LedgerErrorKind int

const (
	LedgerTransient LedgerErrorKind = iota
	LedgerUnfunded
	LedgerPermissionDenied
	LedgerMalformed
	LedgerRejectedOther
)

func (k LedgerErrorKind) String() string {
	switch k {
	case LedgerTransient:
		return "transient"
	case LedgerUnfunded:
		return "unfunded"
	case LedgerPermissionDenied:
		return "permission_denied"
	case LedgerMalformed:
		return "malformed"
	default:
		return "rejected"
	}
}

// LedgerError is returned by LedgerService implementations.
// Transient errors match ErrLedgerTransient, every other kind matches ErrLedgerRejected.
type LedgerError struct {
	Op   string
	Code string // Engine result or RPC error code reported by the ledger
	Kind LedgerErrorKind
	Err  error
}

func (e *LedgerError) Error() string {
	msg := fmt.Sprintf("ledger %s %s", e.Op, e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is maps the kind onto the ledger sentinels
func (e *LedgerError) Is(target error) bool {
	switch target {
	case ErrLedgerTransient:
		return e.Kind == LedgerTransient
	case ErrLedgerRejected:
		return e.Kind != LedgerTransient
	}
	return false
}

// IsLedgerTransient reports whether err is worth retrying
func IsLedgerTransient(err error) bool {
	return errors.Is(err, ErrLedgerTransient)
}
