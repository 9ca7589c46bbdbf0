package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
)

// RegisterInput represents the input for registering an account
type RegisterInput struct {
	Username       string
	Address        string
	Credential     string
	InitialBalance decimal.Decimal
}

// AccountService handles Account Store operations exposed to callers
type AccountService struct {
	AccountRepo domain.AccountRepository
	Ledger      domain.LedgerService
	Logger      *slog.Logger
}

// NewAccountService creates a new AccountService instance
func NewAccountService(accountRepo domain.AccountRepository, ledger domain.LedgerService, logger *slog.Logger) *AccountService {
	return &AccountService{
		AccountRepo: accountRepo,
		Ledger:      ledger,
		Logger:      logging.OrDefault(logger),
	}
}

// Register creates an account. A positive initial balance is journaled as a deposit.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	if input.InitialBalance.IsNegative() {
		return nil, fmt.Errorf("%w: initial balance cannot be negative", domain.ErrInvalidArgument)
	}
	if err := domain.ValidateAmountScale(input.InitialBalance); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	account := &domain.Account{
		ID:         uuid.New(),
		Username:   strings.TrimSpace(input.Username),
		Address:    strings.TrimSpace(input.Address),
		Credential: input.Credential,
		Balance:    decimal.Zero,
	}
	if err := account.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	if err := s.AccountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if input.InitialBalance.IsPositive() {
		if _, err := s.AccountRepo.Credit(ctx, domain.BalanceChange{
			AccountID: account.ID,
			Amount:    input.InitialBalance,
			Reason:    domain.ReasonDeposit,
		}); err != nil {
			return nil, fmt.Errorf("failed to credit initial balance: %w", err)
		}
	}

	s.Logger.Info("account registered", "account_id", account.ID, "username", account.Username)
	return s.AccountRepo.GetByID(ctx, account.ID)
}

// Get retrieves an account with its aggregates
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.AccountRepo.GetByID(ctx, id)
}

// List retrieves all accounts
func (s *AccountService) List(ctx context.Context) ([]*domain.Account, error) {
	return s.AccountRepo.List(ctx)
}

// Deposit credits an account
func (s *AccountService) Deposit(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive", domain.ErrInvalidArgument)
	}
	if err := domain.ValidateAmountScale(amount); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	if _, err := s.AccountRepo.Credit(ctx, domain.BalanceChange{AccountID: id, Amount: amount, Reason: domain.ReasonDeposit}); err != nil {
		return nil, fmt.Errorf("failed to deposit: %w", err)
	}
	return s.AccountRepo.GetByID(ctx, id)
}

// SetBalance overwrites the local balance as an operator adjustment
func (s *AccountService) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (*domain.Account, error) {
	if balance.IsNegative() {
		return nil, fmt.Errorf("%w: balance cannot be negative", domain.ErrInvalidArgument)
	}
	if err := domain.ValidateAmountScale(balance); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	if _, err := s.AccountRepo.SetBalance(ctx, id, balance, domain.ReasonAdjustment); err != nil {
		return nil, fmt.Errorf("failed to set balance: %w", err)
	}
	return s.AccountRepo.GetByID(ctx, id)
}

// SyncBalance aligns the local balance with the account's ledger balance
func (s *AccountService) SyncBalance(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if s.Ledger == nil {
		return nil, errors.New("no ledger configured")
	}

	account, err := s.AccountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ledgerBalance, err := s.Ledger.AccountBalance(ctx, account.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger balance: %w", err)
	}

	if _, err := s.AccountRepo.SetBalance(ctx, id, ledgerBalance, domain.ReasonLedgerSync); err != nil {
		return nil, fmt.Errorf("failed to store ledger balance: %w", err)
	}

	s.Logger.Info("account balance synced", "account_id", id, "previous", account.Balance.String(), "ledger", ledgerBalance.String())
	return s.AccountRepo.GetByID(ctx, id)
}

// Entries lists the newest balance entries of an account
func (s *AccountService) Entries(ctx context.Context, id uuid.UUID, limit int) ([]*domain.BalanceEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.AccountRepo.ListEntries(ctx, id, limit)
}
