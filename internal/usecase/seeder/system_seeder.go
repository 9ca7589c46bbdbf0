package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
	"github.com/simaogato/bountyflow-backend/internal/logging"
)

// SeedAccount defines an account to be seeded
type SeedAccount struct {
	Username   string
	Address    string
	Credential string
	Balance    decimal.Decimal
}

// LedgerFunder tops up ledger accounts. The in-memory ledger implements it.
type LedgerFunder interface {
	Fund(address, credential string, amount decimal.Decimal)
}

// SystemSeeder handles seeding of configured accounts
type SystemSeeder struct {
	repo     domain.AccountRepository
	accounts []SeedAccount
	funder   LedgerFunder
	logger   *slog.Logger
}

// NewSystemSeeder creates a new SystemSeeder instance. funder may be nil.
func NewSystemSeeder(repo domain.AccountRepository, accounts []SeedAccount, funder LedgerFunder, logger *slog.Logger) *SystemSeeder {
	return &SystemSeeder{
		repo:     repo,
		accounts: accounts,
		funder:   funder,
		logger:   logging.OrDefault(logger),
	}
}

// Seed ensures all configured accounts exist
// If an account with the address doesn't exist, it creates it with the configured balance
func (s *SystemSeeder) Seed(ctx context.Context) error {
	for _, seed := range s.accounts {
		// Try to get the account by address
		_, err := s.repo.GetByAddress(ctx, seed.Address)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to look up seed account %s: %w", seed.Username, err)
		}

		// Account doesn't exist, create it
		account := &domain.Account{
			ID:         uuid.New(),
			Username:   seed.Username,
			Address:    seed.Address,
			Credential: seed.Credential,
			Balance:    decimal.Zero,
		}

		// Validate before creating
		if err := account.Validate(); err != nil {
			return fmt.Errorf("seed account %q: %w", seed.Username, err)
		}

		if err := s.repo.Create(ctx, account); err != nil {
			return err
		}

		if seed.Balance.IsPositive() {
			if _, err := s.repo.Credit(ctx, domain.BalanceChange{
				AccountID: account.ID,
				Amount:    seed.Balance,
				Reason:    domain.ReasonDeposit,
			}); err != nil {
				return err
			}
			if s.funder != nil {
				s.funder.Fund(account.Address, account.Credential, seed.Balance)
			}
		}

		s.logger.Info("seed account created", "username", account.Username, "account_id", account.ID)
	}

	return nil
}
