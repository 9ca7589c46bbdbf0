// Package memory provides an in-process ledger with conditional transfers.
// It verifies fulfillments the way the real ledger does and is used in dev mode and tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/cryptocondition"
	"github.com/simaogato/bountyflow-backend/internal/domain"
)

type account struct {
	credential string
	balance    decimal.Decimal
	sequence   uint32
}

type escrowKey struct {
	owner    string
	sequence uint32
}

type escrow struct {
	destination string
	amount      decimal.Decimal
	condition   string
	cancelAfter time.Time
	finished    bool
}

// Ledger implements domain.LedgerService in memory
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*account
	escrows  map[escrowKey]*escrow
	now      func() time.Time
	txCount  uint64
	failNext map[string][]error
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
		escrows:  make(map[escrowKey]*escrow),
		now:      time.Now,
		failNext: make(map[string][]error),
	}
}

// SetNowFunc overrides the ledger clock
func (l *Ledger) SetNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Fund creates or tops up a ledger account
func (l *Ledger) Fund(address, credential string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[address]
	if !ok {
		acc = &account{credential: credential, balance: decimal.Zero, sequence: 1}
		l.accounts[address] = acc
	}
	if credential != "" {
		acc.credential = credential
	}
	acc.balance = acc.balance.Add(amount)
}

// FailNext queues err as the next result of op ("create" or "finish")
func (l *Ledger) FailNext(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNext[op] = append(l.failNext[op], err)
}

// EscrowCount returns the number of escrows ever created
func (l *Ledger) EscrowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.escrows)
}

func (l *Ledger) injected(op string) error {
	queue := l.failNext[op]
	if len(queue) == 0 {
		return nil
	}
	l.failNext[op] = queue[1:]
	return queue[0]
}

// AccountBalance returns the ledger balance of address
func (l *Ledger) AccountBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[address]
	if !ok {
		return decimal.Zero, &domain.LedgerError{Op: "account_info", Code: "actNotFound", Kind: domain.LedgerMalformed,
			Err: fmt.Errorf("account %s not found", address)}
	}
	return acc.balance, nil
}

// CreateConditionalTransfer locks funds behind the condition
func (l *Ledger) CreateConditionalTransfer(ctx context.Context, req domain.ConditionalTransferRequest) (*domain.ConditionalTransfer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.injected("create"); err != nil {
		return nil, err
	}

	acc, ok := l.accounts[req.SourceAddress]
	if !ok {
		return nil, &domain.LedgerError{Op: "escrow_create", Code: "tecNO_DST", Kind: domain.LedgerMalformed,
			Err: fmt.Errorf("source %s not found", req.SourceAddress)}
	}
	if req.SourceCredential == "" || req.SourceCredential != acc.credential {
		return nil, &domain.LedgerError{Op: "escrow_create", Code: "tefBAD_AUTH", Kind: domain.LedgerPermissionDenied,
			Err: errors.New("credential does not match source account")}
	}
	if !req.Amount.IsPositive() {
		return nil, &domain.LedgerError{Op: "escrow_create", Code: "temBAD_AMOUNT", Kind: domain.LedgerMalformed}
	}
	if !req.CancelAfter.After(l.now()) {
		return nil, &domain.LedgerError{Op: "escrow_create", Code: "tecNO_PERMISSION", Kind: domain.LedgerPermissionDenied,
			Err: errors.New("cancel after is in the past")}
	}
	if acc.balance.LessThan(req.Amount) {
		return nil, &domain.LedgerError{Op: "escrow_create", Code: "tecUNFUNDED", Kind: domain.LedgerUnfunded,
			Err: fmt.Errorf("balance %s below %s", acc.balance, req.Amount)}
	}

	sequence := acc.sequence
	acc.sequence++
	acc.balance = acc.balance.Sub(req.Amount)
	l.escrows[escrowKey{owner: req.SourceAddress, sequence: sequence}] = &escrow{
		destination: req.DestinationAddress,
		amount:      req.Amount,
		condition:   strings.ToUpper(req.Condition),
		cancelAfter: req.CancelAfter,
	}

	return &domain.ConditionalTransfer{TransferID: l.nextTxID(), Sequence: sequence}, nil
}

// FinishConditionalTransfer releases an escrow when the fulfillment matches
func (l *Ledger) FinishConditionalTransfer(ctx context.Context, req domain.FinishTransferRequest) (*domain.TransferReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.injected("finish"); err != nil {
		return nil, err
	}

	if !l.knownCredential(req.FinisherCredential) {
		return nil, &domain.LedgerError{Op: "escrow_finish", Code: "tefBAD_AUTH", Kind: domain.LedgerPermissionDenied}
	}

	e, ok := l.escrows[escrowKey{owner: req.OwnerAddress, sequence: req.Sequence}]
	if !ok || e.finished {
		return nil, &domain.LedgerError{Op: "escrow_finish", Code: "tecNO_TARGET", Kind: domain.LedgerRejectedOther,
			Err: fmt.Errorf("no escrow %s/%d", req.OwnerAddress, req.Sequence)}
	}
	if !l.now().Before(e.cancelAfter) {
		return nil, &domain.LedgerError{Op: "escrow_finish", Code: "tecNO_PERMISSION", Kind: domain.LedgerPermissionDenied,
			Err: errors.New("escrow expired")}
	}
	valid, err := cryptocondition.Verify(e.condition, req.Fulfillment)
	if err != nil || !valid {
		return nil, &domain.LedgerError{Op: "escrow_finish", Code: "tecCRYPTOCONDITION_ERROR", Kind: domain.LedgerRejectedOther, Err: err}
	}

	e.finished = true
	dest, ok := l.accounts[e.destination]
	if !ok {
		dest = &account{balance: decimal.Zero, sequence: 1}
		l.accounts[e.destination] = dest
	}
	dest.balance = dest.balance.Add(e.amount)

	return &domain.TransferReceipt{TransferID: l.nextTxID()}, nil
}

func (l *Ledger) knownCredential(credential string) bool {
	if credential == "" {
		return false
	}
	for _, acc := range l.accounts {
		if acc.credential == credential {
			return true
		}
	}
	return false
}

// nextTxID must be called with the lock held
func (l *Ledger) nextTxID() string {
	l.txCount++
	sum := sha256.Sum256([]byte(fmt.Sprintf("tx-%d-%d", l.txCount, l.now().UnixNano())))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
