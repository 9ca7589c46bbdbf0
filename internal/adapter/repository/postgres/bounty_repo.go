package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bountyflow-backend/internal/domain"
)

// bountyRepository implements domain.BountyRepository.
// Writers lock the bounty row first and the account row second.
type bountyRepository struct {
	db *DB
}

// NewBountyRepository creates a new bounty repository
func NewBountyRepository(db *DB) domain.BountyRepository {
	return &bountyRepository{db: db}
}

const bountyColumns = `
	b.id, b.funder_id, b.funder_address, b.title, b.description, b.issue_url, b.amount,
	b.time_limit_seconds, b.status, b.escrow_stage, b.version, b.developer_id, b.developer_address,
	b.escrow_condition, b.cancel_after, b.claimed_amount, b.created_at, b.updated_at,
	b.accepted_at, b.claimed_at
`

const contributionColumns = `
	id, bounty_id, contributor_id, contributor_address, amount, position,
	escrow_transfer_id, escrow_sequence, escrow_status, escrow_debited, finish_transfer_id,
	escrow_created_at, escrow_finished_at, created_at
`

func scanBounty(row scanner) (*domain.Bounty, error) {
	var (
		b                     domain.Bounty
		amount, claimedAmount string
		timeLimitSeconds      int64
		status, stage         string
		developerID           uuid.NullUUID
		cancelAfter           sql.NullTime
		acceptedAt, claimedAt sql.NullTime
	)
	err := row.Scan(
		&b.ID,
		&b.FunderID,
		&b.FunderAddress,
		&b.Title,
		&b.Description,
		&b.IssueURL,
		&amount,
		&timeLimitSeconds,
		&status,
		&stage,
		&b.Version,
		&developerID,
		&b.DeveloperAddress,
		&b.Condition,
		&cancelAfter,
		&claimedAmount,
		&b.CreatedAt,
		&b.UpdatedAt,
		&acceptedAt,
		&claimedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse bounty amount: %w", err)
	}
	if b.ClaimedAmount, err = decimal.NewFromString(claimedAmount); err != nil {
		return nil, fmt.Errorf("failed to parse claimed amount: %w", err)
	}

	b.TimeLimit = time.Duration(timeLimitSeconds) * time.Second
	b.Status = domain.BountyStatus(status)
	b.EscrowStage = domain.EscrowStage(stage)
	if developerID.Valid {
		id := developerID.UUID
		b.DeveloperID = &id
	}
	b.CancelAfter = nullTime(cancelAfter)
	b.AcceptedAt = nullTime(acceptedAt)
	b.ClaimedAt = nullTime(claimedAt)
	return &b, nil
}

func scanContribution(row scanner) (*domain.Contribution, error) {
	var (
		c                          domain.Contribution
		amount                     string
		transferID, escrowStatus   sql.NullString
		sequence                   sql.NullInt64
		debited                    bool
		finishTransferID           string
		escrowCreated, escrowEnded sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.BountyID,
		&c.ContributorID,
		&c.ContributorAddress,
		&amount,
		&c.Position,
		&transferID,
		&sequence,
		&escrowStatus,
		&debited,
		&finishTransferID,
		&escrowCreated,
		&escrowEnded,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("failed to parse contribution amount: %w", err)
	}

	if transferID.Valid {
		c.Escrow = &domain.EscrowRecord{
			TransferID:       transferID.String,
			Sequence:         uint32(sequence.Int64),
			Status:           domain.EscrowStatus(escrowStatus.String),
			Debited:          debited,
			FinishTransferID: finishTransferID,
			CreatedAt:        escrowCreated.Time,
			FinishedAt:       nullTime(escrowEnded),
		}
	}
	return &c, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func timeOrNull(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Create creates an open bounty with its seed contribution
func (r *bountyRepository) Create(ctx context.Context, bounty *domain.Bounty, seed *domain.Contribution) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	bounty.Version = 1
	bounty.CreatedAt = ts
	bounty.UpdatedAt = ts

	insertBountyQuery := `
		INSERT INTO bounties (id, funder_id, funder_address, title, description, issue_url, amount,
			time_limit_seconds, status, escrow_stage, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`
	_, err = tx.ExecContext(ctx, insertBountyQuery,
		bounty.ID,
		bounty.FunderID,
		bounty.FunderAddress,
		bounty.Title,
		bounty.Description,
		bounty.IssueURL,
		bounty.Amount.String(),
		int64(bounty.TimeLimit/time.Second),
		string(bounty.Status),
		string(bounty.EscrowStage),
		bounty.Version,
		ts,
	)
	if err != nil {
		switch pqCode(err) {
		case codeUniqueViolation:
			return fmt.Errorf("bounty %s already exists: %w", bounty.ID, domain.ErrConflict)
		case codeForeignKeyViolation:
			return fmt.Errorf("funder %s: %w", bounty.FunderID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to insert bounty: %w", err)
	}

	seed.BountyID = bounty.ID
	seed.Position = 0
	seed.CreatedAt = ts
	if err := insertContribution(ctx, tx, seed); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertContribution(ctx context.Context, tx *sql.Tx, c *domain.Contribution) error {
	query := `
		INSERT INTO contributions (id, bounty_id, contributor_id, contributor_address, amount, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := tx.ExecContext(ctx, query,
		c.ID,
		c.BountyID,
		c.ContributorID,
		c.ContributorAddress,
		c.Amount.String(),
		c.Position,
		c.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == codeForeignKeyViolation {
			return fmt.Errorf("contributor %s: %w", c.ContributorID, domain.ErrNotFound)
		}
		return fmt.Errorf("failed to insert contribution: %w", err)
	}
	return nil
}

// GetByID retrieves a bounty
func (r *bountyRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	b, err := scanBounty(r.db.QueryRowContext(ctx, `SELECT `+bountyColumns+` FROM bounties b WHERE b.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bounty %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get bounty: %w", err)
	}
	return b, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List retrieves bounties newest first
func (r *bountyRepository) List(ctx context.Context, filter domain.BountyFilter) ([]*domain.Bounty, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch {
	case filter.Status != "":
		where = append(where, "b.status = "+arg(string(filter.Status)))
	case !filter.IncludeCancelled:
		where = append(where, "b.status <> 'cancelled'")
	}
	if filter.FunderID != nil {
		where = append(where, "b.funder_id = "+arg(*filter.FunderID))
	}
	if filter.DeveloperID != nil {
		where = append(where, "b.developer_id = "+arg(*filter.DeveloperID))
	}
	if filter.ContributorID != nil {
		where = append(where, "EXISTS (SELECT 1 FROM contributions c WHERE c.bounty_id = b.id AND c.contributor_id = "+arg(*filter.ContributorID)+")")
	}
	if q := strings.TrimSpace(filter.TitleQuery); q != "" {
		p := arg("%" + likeEscaper.Replace(q) + "%")
		where = append(where, "(b.title ILIKE "+p+" OR b.description ILIKE "+p+")")
	}
	if q := strings.TrimSpace(filter.IssueURL); q != "" {
		where = append(where, "b.issue_url ILIKE "+arg("%"+likeEscaper.Replace(q)+"%"))
	}
	if filter.MinAmount != nil {
		where = append(where, "b.amount >= "+arg(filter.MinAmount.String()))
	}
	if filter.MaxAmount != nil {
		where = append(where, "b.amount <= "+arg(filter.MaxAmount.String()))
	}
	if filter.CreatedAfter != nil {
		where = append(where, "b.created_at > "+arg(filter.CreatedAfter.UTC()))
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + bountyColumns + ` FROM bounties b`)
	if len(where) > 0 {
		query.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	query.WriteString(" ORDER BY b.created_at DESC, b.id ASC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT " + arg(filter.Limit))
	}
	if filter.Offset > 0 {
		query.WriteString(" OFFSET " + arg(filter.Offset))
	}

	rows, err := r.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}
	defer rows.Close()

	bounties := make([]*domain.Bounty, 0)
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bounty: %w", err)
		}
		bounties = append(bounties, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bounties: %w", err)
	}
	return bounties, nil
}

// ListContributions retrieves live contributions ordered by position
func (r *bountyRepository) ListContributions(ctx context.Context, bountyID uuid.UUID) ([]*domain.Contribution, error) {
	if _, err := r.GetByID(ctx, bountyID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE bounty_id = $1 ORDER BY position ASC`, bountyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	contributions := make([]*domain.Contribution, 0)
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributions: %w", err)
	}
	return contributions, nil
}

// AddContribution appends a contribution while the bounty is open
func (r *bountyRepository) AddContribution(ctx context.Context, contribution *domain.Contribution) (*domain.Bounty, error) {
	return r.mutate(ctx, contribution.BountyID, func(tx *sql.Tx, b *domain.Bounty) error {
		if err := b.Require(domain.BountyStatusOpen, "boost"); err != nil {
			return err
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM contributions WHERE bounty_id = $1`, b.ID,
		).Scan(&contribution.Position); err != nil {
			return fmt.Errorf("failed to read next position: %w", err)
		}
		contribution.CreatedAt = now()
		if err := insertContribution(ctx, tx, contribution); err != nil {
			return err
		}

		b.Amount = b.Amount.Add(contribution.Amount)
		return nil
	})
}

// Cancel moves an open bounty to cancelled and deletes its contributions
func (r *bountyRepository) Cancel(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	return r.mutate(ctx, id, func(tx *sql.Tx, b *domain.Bounty) error {
		if err := b.TransitionTo(domain.BountyStatusCancelled); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM contributions WHERE bounty_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete contributions: %w", err)
		}
		b.Amount = decimal.Zero
		return nil
	})
}

// BeginAcceptance moves open -> accepted and stores the commitment
func (r *bountyRepository) BeginAcceptance(ctx context.Context, ticket domain.AcceptanceTicket) (*domain.Bounty, error) {
	return r.mutate(ctx, ticket.BountyID, func(tx *sql.Tx, b *domain.Bounty) error {
		if err := b.Require(domain.BountyStatusOpen, "accept"); err != nil {
			return err
		}
		if b.Version != ticket.ExpectedVersion {
			return fmt.Errorf("bounty %s is at version %d, expected %d: %w",
				b.ID, b.Version, ticket.ExpectedVersion, domain.ErrConflict)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, ticket.DeveloperID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check developer: %w", err)
		}
		if !exists {
			return fmt.Errorf("developer %s: %w", ticket.DeveloperID, domain.ErrNotFound)
		}

		if err := b.TransitionTo(domain.BountyStatusAccepted); err != nil {
			return err
		}
		if err := b.AdvanceStage(domain.EscrowStageIssuing); err != nil {
			return err
		}

		developerID := ticket.DeveloperID
		cancelAfter := ticket.CancelAfter.UTC()
		acceptedAt := ticket.AcceptedAt.UTC()
		b.DeveloperID = &developerID
		b.DeveloperAddress = ticket.DeveloperAddress
		b.Condition = ticket.Condition
		b.CancelAfter = &cancelAfter
		b.AcceptedAt = &acceptedAt

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO bounty_secrets (bounty_id, fulfillment) VALUES ($1, $2)`, b.ID, ticket.Fulfillment,
		); err != nil {
			return fmt.Errorf("failed to store escrow secrets: %w", err)
		}
		return nil
	})
}

// RecordEscrow attaches a ledger escrow to a contribution, optionally debiting the contributor
func (r *bountyRepository) RecordEscrow(ctx context.Context, lock domain.EscrowLock) (*domain.Contribution, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	b, err := lockBounty(ctx, tx, lock.BountyID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BountyStatusAccepted || b.EscrowStage != domain.EscrowStageIssuing {
		return nil, &domain.TransitionError{Entity: "escrow stage", From: string(b.EscrowStage), To: "record escrow"}
	}

	contribution, err := scanContribution(tx.QueryRowContext(ctx,
		`SELECT `+contributionColumns+` FROM contributions WHERE id = $1 AND bounty_id = $2 FOR UPDATE`,
		lock.ContributionID, b.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contribution %s: %w", lock.ContributionID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock contribution: %w", err)
	}
	if contribution.Escrow != nil {
		return nil, fmt.Errorf("contribution %s already has an escrow: %w", contribution.ID, domain.ErrConflict)
	}

	if lock.Debit {
		bountyID := b.ID
		if _, err := applyChange(ctx, tx, domain.BalanceChange{
			AccountID: contribution.ContributorID,
			Amount:    contribution.Amount,
			Reason:    domain.ReasonEscrowLock,
			BountyID:  &bountyID,
		}, domain.EntryTypeDebit); err != nil {
			return nil, err
		}
	}

	record := lock.Record
	record.Debited = lock.Debit
	if record.Status == "" {
		record.Status = domain.EscrowStatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now()
	}

	updateQuery := `
		UPDATE contributions
		SET escrow_transfer_id = $2, escrow_sequence = $3, escrow_status = $4, escrow_debited = $5, escrow_created_at = $6
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, updateQuery,
		contribution.ID,
		record.TransferID,
		int64(record.Sequence),
		string(record.Status),
		record.Debited,
		record.CreatedAt.UTC(),
	); err != nil {
		return nil, fmt.Errorf("failed to record escrow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	contribution.Escrow = &record
	return contribution, nil
}

// CompleteAcceptance moves stage issuing -> issued
func (r *bountyRepository) CompleteAcceptance(ctx context.Context, id uuid.UUID, completionSecret string) (*domain.Bounty, error) {
	return r.mutate(ctx, id, func(tx *sql.Tx, b *domain.Bounty) error {
		var missing uuid.NullUUID
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM contributions WHERE bounty_id = $1 AND escrow_transfer_id IS NULL ORDER BY position LIMIT 1`, id,
		).Scan(&missing)
		if err == nil {
			return fmt.Errorf("contribution %s has no escrow: %w", missing.UUID, domain.ErrInvalidTransition)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check escrows: %w", err)
		}

		if err := b.AdvanceStage(domain.EscrowStageIssued); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bounty_secrets SET completion_secret = $2 WHERE bounty_id = $1`, id, completionSecret,
		); err != nil {
			return fmt.Errorf("failed to store completion secret: %w", err)
		}
		return nil
	})
}

// BeginRelease moves stage issued -> releasing
func (r *bountyRepository) BeginRelease(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	return r.mutate(ctx, id, func(_ *sql.Tx, b *domain.Bounty) error {
		return b.AdvanceStage(domain.EscrowStageReleasing)
	})
}

// AbortRelease moves stage releasing -> issued
func (r *bountyRepository) AbortRelease(ctx context.Context, id uuid.UUID) (*domain.Bounty, error) {
	return r.mutate(ctx, id, func(_ *sql.Tx, b *domain.Bounty) error {
		return b.AdvanceStage(domain.EscrowStageIssued)
	})
}

// MarkEscrowFinished records a released escrow
func (r *bountyRepository) MarkEscrowFinished(ctx context.Context, contributionID uuid.UUID, finishTransferID string, finishedAt time.Time) error {
	query := `
		UPDATE contributions
		SET escrow_status = $2, finish_transfer_id = $3, escrow_finished_at = $4
		WHERE id = $1 AND escrow_transfer_id IS NOT NULL
	`
	result, err := r.db.ExecContext(ctx, query,
		contributionID,
		string(domain.EscrowStatusFinished),
		finishTransferID,
		finishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark escrow finished: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM contributions WHERE id = $1)`, contributionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check contribution: %w", err)
	}
	if !exists {
		return fmt.Errorf("contribution %s: %w", contributionID, domain.ErrNotFound)
	}
	return fmt.Errorf("contribution %s has no escrow: %w", contributionID, domain.ErrInvalidTransition)
}

// SettleClaim credits the developer and moves the bounty to claimed
func (r *bountyRepository) SettleClaim(ctx context.Context, settlement domain.Settlement) (*domain.Bounty, error) {
	return r.mutate(ctx, settlement.BountyID, func(tx *sql.Tx, b *domain.Bounty) error {
		if !b.IsAssignedTo(settlement.DeveloperID) {
			return fmt.Errorf("account %s is not the assigned developer: %w", settlement.DeveloperID, domain.ErrForbidden)
		}
		if err := b.AdvanceStage(domain.EscrowStageReleased); err != nil {
			return err
		}
		if err := b.TransitionTo(domain.BountyStatusClaimed); err != nil {
			return err
		}

		if settlement.Amount.IsPositive() {
			bountyID := b.ID
			if _, err := applyChange(ctx, tx, domain.BalanceChange{
				AccountID: settlement.DeveloperID,
				Amount:    settlement.Amount,
				Reason:    domain.ReasonClaimPayout,
				BountyID:  &bountyID,
			}, domain.EntryTypeCredit); err != nil {
				return err
			}
		}

		claimedAt := settlement.ClaimedAt.UTC()
		b.ClaimedAmount = settlement.Amount
		b.ClaimedAt = &claimedAt
		return nil
	})
}

// GetSecrets retrieves the fulfillment and completion secret
func (r *bountyRepository) GetSecrets(ctx context.Context, bountyID uuid.UUID) (*domain.EscrowSecrets, error) {
	secrets := domain.EscrowSecrets{BountyID: bountyID}
	err := r.db.QueryRowContext(ctx,
		`SELECT fulfillment, completion_secret FROM bounty_secrets WHERE bounty_id = $1`, bountyID,
	).Scan(&secrets.Fulfillment, &secrets.CompletionSecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("secrets for bounty %s: %w", bountyID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get escrow secrets: %w", err)
	}
	return &secrets, nil
}

// mutate locks the bounty, applies fn and writes the bounty back with a bumped version
func (r *bountyRepository) mutate(ctx context.Context, id uuid.UUID, fn func(tx *sql.Tx, b *domain.Bounty) error) (*domain.Bounty, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	b, err := lockBounty(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(tx, b); err != nil {
		return nil, err
	}

	b.Version++
	b.UpdatedAt = now()
	if err := saveBounty(ctx, tx, b); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return b, nil
}

func lockBounty(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Bounty, error) {
	b, err := scanBounty(tx.QueryRowContext(ctx, `SELECT `+bountyColumns+` FROM bounties b WHERE b.id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("bounty %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock bounty: %w", err)
	}
	return b, nil
}

func saveBounty(ctx context.Context, tx *sql.Tx, b *domain.Bounty) error {
	var developerID uuid.NullUUID
	if b.DeveloperID != nil {
		developerID = uuid.NullUUID{UUID: *b.DeveloperID, Valid: true}
	}

	query := `
		UPDATE bounties
		SET amount = $2, status = $3, escrow_stage = $4, version = $5, developer_id = $6,
			developer_address = $7, escrow_condition = $8, cancel_after = $9, claimed_amount = $10,
			updated_at = $11, accepted_at = $12, claimed_at = $13
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query,
		b.ID,
		b.Amount.String(),
		string(b.Status),
		string(b.EscrowStage),
		b.Version,
		developerID,
		b.DeveloperAddress,
		b.Condition,
		timeOrNull(b.CancelAfter),
		b.ClaimedAmount.String(),
		b.UpdatedAt,
		timeOrNull(b.AcceptedAt),
		timeOrNull(b.ClaimedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update bounty: %w", err)
	}
	return nil
}
