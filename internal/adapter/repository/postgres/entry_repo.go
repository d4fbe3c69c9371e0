package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

const entryColumns = `id, account_id, date, currency, amount, description, debit_bucket_id, credit_bucket_id, created_at, updated_at`

// Both legs must be buckets of the entry's account
const legsBelongToAccount = `
	EXISTS (SELECT 1 FROM buckets WHERE id = $7 AND account_id = $2)
	AND EXISTS (SELECT 1 FROM buckets WHERE id = $8 AND account_id = $2)
`

// entryRepository implements domain.EntryRepository
type entryRepository struct {
	q querier
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *DB) domain.EntryRepository {
	return &entryRepository{q: db}
}

func scanEntry(row rowScanner) (*domain.Entry, error) {
	var entry domain.Entry
	var amountStr string
	err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.Date,
		&entry.Currency,
		&amountStr,
		&entry.Description,
		&entry.DebitBucketID,
		&entry.CreditBucketID,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Parse amount (NUMERIC)
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse amount: %w", err)
	}
	entry.Amount = amount
	return &entry, nil
}

// Create creates a new entry
func (r *entryRepository) Create(ctx context.Context, entry *domain.Entry) error {
	query := `
		INSERT INTO entries (id, account_id, date, currency, amount, description, debit_bucket_id, credit_bucket_id)
		SELECT $1::uuid, $2::uuid, $3::timestamptz, $4::text, $5::numeric, $6::text, $7::uuid, $8::uuid
		WHERE ` + legsBelongToAccount + `
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRowContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Date,
		entry.Currency,
		entry.Amount.String(),
		entry.Description,
		entry.DebitBucketID,
		entry.CreditBucketID,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to create entry: %w", domain.ErrBucketNotFound)
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Update overwrites every attribute of an entry
func (r *entryRepository) Update(ctx context.Context, entry *domain.Entry) error {
	query := `
		UPDATE entries
		SET date = $3, currency = $4, amount = $5::numeric, description = $6,
			debit_bucket_id = $7, credit_bucket_id = $8, updated_at = now()
		WHERE id = $1 AND account_id = $2 AND ` + legsBelongToAccount + `
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRowContext(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.Date,
		entry.Currency,
		entry.Amount.String(),
		entry.Description,
		entry.DebitBucketID,
		entry.CreditBucketID,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, entry.ID)
		}
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (r *entryRepository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM entries WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
	}
	return nil
}

// GetByID retrieves an entry by its ID
func (r *entryRepository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*domain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = $1 AND account_id = $2`

	entry, err := scanEntry(r.q.QueryRowContext(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("failed to get entry by ID: %w", err)
	}
	return entry, nil
}

func where(accountID uuid.UUID, filter domain.EntryFilter) (string, []any) {
	conditions := []string{"account_id = $1"}
	args := []any{accountID}
	if filter.BucketID != nil {
		args = append(args, *filter.BucketID)
		conditions = append(conditions, fmt.Sprintf("(debit_bucket_id = $%d OR credit_bucket_id = $%d)", len(args), len(args)))
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List retrieves entries newest first
func (r *entryRepository) List(ctx context.Context, accountID uuid.UUID, filter domain.EntryFilter) ([]*domain.Entry, error) {
	clause, args := where(accountID, filter)
	query := `SELECT ` + entryColumns + ` FROM entries` + clause + ` ORDER BY date DESC, seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of entries matching filter
func (r *entryRepository) Count(ctx context.Context, accountID uuid.UUID, filter domain.EntryFilter) (int, error) {
	clause, args := where(accountID, filter)

	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// Totals sums the amounts a bucket received on each leg
func (r *entryRepository) Totals(ctx context.Context, accountID, bucketID uuid.UUID) (domain.LegTotals, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE debit_bucket_id = $2), 0)::text,
			COALESCE(SUM(amount) FILTER (WHERE credit_bucket_id = $2), 0)::text
		FROM entries
		WHERE account_id = $1 AND (debit_bucket_id = $2 OR credit_bucket_id = $2)
	`

	var debitStr, creditStr string
	if err := r.q.QueryRowContext(ctx, query, accountID, bucketID).Scan(&debitStr, &creditStr); err != nil {
		return domain.LegTotals{}, fmt.Errorf("failed to sum entries: %w", err)
	}

	debits, err := decimal.NewFromString(debitStr)
	if err != nil {
		return domain.LegTotals{}, fmt.Errorf("failed to parse debit total: %w", err)
	}
	credits, err := decimal.NewFromString(creditStr)
	if err != nil {
		return domain.LegTotals{}, fmt.Errorf("failed to parse credit total: %w", err)
	}
	return domain.LegTotals{Debits: debits, Credits: credits}, nil
}

// TotalsByBucket is Totals for every bucket of the account that has entries
func (r *entryRepository) TotalsByBucket(ctx context.Context, accountID uuid.UUID) (map[uuid.UUID]domain.LegTotals, error) {
	query := `
		SELECT bucket_id, leg, SUM(amount)::text
		FROM (
			SELECT debit_bucket_id AS bucket_id, 'DEBIT' AS leg, amount FROM entries WHERE account_id = $1
			UNION ALL
			SELECT credit_bucket_id AS bucket_id, 'CREDIT' AS leg, amount FROM entries WHERE account_id = $1
		) legs
		GROUP BY bucket_id, leg
	`

	rows, err := r.q.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum entries: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]domain.LegTotals)
	for rows.Next() {
		var bucketID uuid.UUID
		var leg, sumStr string
		if err := rows.Scan(&bucketID, &leg, &sumStr); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		sum, err := decimal.NewFromString(sumStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total: %w", err)
		}
		totals[bucketID] = totals[bucketID].Add(domain.Leg(leg), sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate totals: %w", err)
	}
	return totals, nil
}
