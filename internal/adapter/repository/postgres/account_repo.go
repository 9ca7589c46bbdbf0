package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

// accountSelect derives the aggregates from bounties and contributions on every read
const accountSelect = `
	SELECT a.id, a.username, a.address, a.credential, a.balance, a.created_at, a.updated_at,
		(SELECT COUNT(*) FROM bounties b WHERE b.funder_id = a.id AND b.status <> 'cancelled'),
		(SELECT COUNT(*) FROM bounties b WHERE b.developer_id = a.id),
		(SELECT COALESCE(SUM(c.amount), 0) FROM contributions c WHERE c.contributor_id = a.id),
		(SELECT COALESCE(SUM(b.claimed_amount), 0) FROM bounties b WHERE b.developer_id = a.id)
	FROM accounts a
`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*domain.Account, error) {
	var (
		account                           domain.Account
		balance, totalFunded, totalEarned string
	)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Address,
		&account.Credential,
		&balance,
		&account.CreatedAt,
		&account.UpdatedAt,
		&account.BountiesCreated,
		&account.BountiesAccepted,
		&totalFunded,
		&totalEarned,
	)
	if err != nil {
		return nil, err
	}

	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("failed to parse balance: %w", err)
	}
	if account.TotalFunded, err = decimal.NewFromString(totalFunded); err != nil {
		return nil, fmt.Errorf("failed to parse total funded: %w", err)
	}
	if account.TotalEarned, err = decimal.NewFromString(totalEarned); err != nil {
		return nil, fmt.Errorf("failed to parse total earned: %w", err)
	}
	return &account, nil
}

// Create creates a new account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	ts := now()
	query := `
		INSERT INTO accounts (id, username, address, credential, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Username,
		account.Address,
		account.Credential,
		account.Balance.String(),
		ts,
	)
	if err != nil {
		if pqCode(err) == codeUniqueViolation {
			return fmt.Errorf("username or address already registered: %w", domain.ErrConflict)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	account.CreatedAt = ts
	account.UpdatedAt = ts
	return nil
}

// GetByID retrieves an account with derived aggregates
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, accountSelect+` WHERE a.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByAddress retrieves an account by ledger address
func (r *accountRepository) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, accountSelect+` WHERE a.address = $1`, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account with address %s: %w", address, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account by address: %w", err)
	}
	return account, nil
}

// List retrieves all accounts ordered by creation time
func (r *accountRepository) List(ctx context.Context) ([]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx, accountSelect+` ORDER BY a.created_at ASC, a.username ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// Debit removes an amount from the balance
func (r *accountRepository) Debit(ctx context.Context, change domain.BalanceChange) (decimal.Decimal, error) {
	if err := change.Validate(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return r.inTx(ctx, func(tx *sql.Tx) (decimal.Decimal, error) {
		return applyChange(ctx, tx, change, domain.EntryTypeDebit)
	})
}

// Credit adds an amount to the balance
func (r *accountRepository) Credit(ctx context.Context, change domain.BalanceChange) (decimal.Decimal, error) {
	if err := change.Validate(); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return r.inTx(ctx, func(tx *sql.Tx) (decimal.Decimal, error) {
		return applyChange(ctx, tx, change, domain.EntryTypeCredit)
	})
}

// SetBalance overwrites the balance and journals the difference
func (r *accountRepository) SetBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal, reason domain.EntryReason) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: balance cannot be negative", domain.ErrInvalidArgument)
	}

	return r.inTx(ctx, func(tx *sql.Tx) (decimal.Decimal, error) {
		current, err := lockBalance(ctx, tx, id)
		if err != nil {
			return decimal.Zero, err
		}

		diff := balance.Sub(current)
		switch diff.Sign() {
		case 1:
			return applyChange(ctx, tx, domain.BalanceChange{AccountID: id, Amount: diff, Reason: reason}, domain.EntryTypeCredit)
		case -1:
			return applyChange(ctx, tx, domain.BalanceChange{AccountID: id, Amount: diff.Neg(), Reason: reason}, domain.EntryTypeDebit)
		}
		return current, nil
	})
}

// ListEntries retrieves the newest balance entries first
func (r *accountRepository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.BalanceEntry, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}

	// A NULL limit returns every entry
	var rowLimit sql.NullInt64
	if limit > 0 {
		rowLimit = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	query := `
		SELECT id, account_id, bounty_id, amount, type, reason, balance_after, created_at
		FROM balance_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, rowLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.BalanceEntry, 0)
	for rows.Next() {
		var (
			entry                domain.BalanceEntry
			bountyID             uuid.NullUUID
			amount, balanceAfter string
			entryType, reason    string
		)
		if err := rows.Scan(&entry.ID, &entry.AccountID, &bountyID, &amount, &entryType, &reason, &balanceAfter, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan balance entry: %w", err)
		}
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse entry amount: %w", err)
		}
		if entry.BalanceAfter, err = decimal.NewFromString(balanceAfter); err != nil {
			return nil, fmt.Errorf("failed to parse balance after: %w", err)
		}
		if bountyID.Valid {
			id := bountyID.UUID
			entry.BountyID = &id
		}
		entry.Type = domain.EntryType(entryType)
		entry.Reason = domain.EntryReason(reason)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balance entries: %w", err)
	}
	return entries, nil
}

func (r *accountRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) (decimal.Decimal, error)) (decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	balance, err := fn(tx)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return balance, nil
}

// lockBalance reads the balance and holds the account row until the transaction ends
func lockBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID) (decimal.Decimal, error) {
	var balance string
	err := tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("failed to lock account: %w", err)
	}

	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance: %w", err)
	}
	return parsed, nil
}

// applyChange moves the balance and writes its journal entry inside tx
func applyChange(ctx context.Context, tx *sql.Tx, change domain.BalanceChange, entryType domain.EntryType) (decimal.Decimal, error) {
	current, err := lockBalance(ctx, tx, change.AccountID)
	if err != nil {
		return decimal.Zero, err
	}

	next := current.Add(change.Amount)
	if entryType == domain.EntryTypeDebit {
		if current.LessThan(change.Amount) {
			return decimal.Zero, fmt.Errorf("account %s has %s, needs %s: %w",
				change.AccountID, current, change.Amount, domain.ErrInsufficientFunds)
		}
		next = current.Sub(change.Amount)
	}

	ts := now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $2, updated_at = $3 WHERE id = $1`,
		change.AccountID, next.String(), ts,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}

	var bountyID uuid.NullUUID
	if change.BountyID != nil {
		bountyID = uuid.NullUUID{UUID: *change.BountyID, Valid: true}
	}

	insertEntryQuery := `
		INSERT INTO balance_entries (id, account_id, bounty_id, amount, type, reason, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, insertEntryQuery,
		uuid.New(),
		change.AccountID,
		bountyID,
		change.Amount.String(),
		string(entryType),
		string(change.Reason),
		next.String(),
		ts,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to insert balance entry: %w", err)
	}

	return next, nil
}
