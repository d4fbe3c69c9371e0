package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

const bucketColumns = `id, account_id, name, description, bucket_type, system, created_at, updated_at`

// bucketRepository implements domain.BucketRepository
type bucketRepository struct {
	q querier
}

// NewBucketRepository creates a new bucket repository
func NewBucketRepository(db *DB) domain.BucketRepository {
	return &bucketRepository{q: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBucket(row rowScanner) (*domain.Bucket, error) {
	var bucket domain.Bucket
	var bucketType string
	err := row.Scan(
		&bucket.ID,
		&bucket.AccountID,
		&bucket.Name,
		&bucket.Description,
		&bucketType,
		&bucket.System,
		&bucket.CreatedAt,
		&bucket.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	bucket.BucketType = domain.BucketType(bucketType)
	return &bucket, nil
}

func (r *bucketRepository) get(ctx context.Context, query string, accountID, id uuid.UUID) (*domain.Bucket, error) {
	bucket, err := scanBucket(r.q.QueryRowContext(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrBucketNotFound, id)
		}
		return nil, fmt.Errorf("failed to get bucket by ID: %w", err)
	}
	return bucket, nil
}

// GetByID retrieves a bucket by its ID
func (r *bucketRepository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE id = $1 AND account_id = $2`
	return r.get(ctx, query, accountID, id)
}

// GetByIDForUpdate locks the bucket row until the transaction ends
func (r *bucketRepository) GetByIDForUpdate(ctx context.Context, accountID, id uuid.UUID) (*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE id = $1 AND account_id = $2 FOR UPDATE`
	return r.get(ctx, query, accountID, id)
}

// Create creates a new bucket
func (r *bucketRepository) Create(ctx context.Context, bucket *domain.Bucket) error {
	query := `
		INSERT INTO buckets (id, account_id, name, description, bucket_type, system)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	err := r.q.QueryRowContext(ctx, query,
		bucket.ID,
		bucket.AccountID,
		bucket.Name,
		bucket.Description,
		string(bucket.BucketType),
		bucket.System,
	).Scan(&bucket.CreatedAt, &bucket.UpdatedAt)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return fmt.Errorf("failed to create bucket: %w", domain.ErrAccountNotFound)
		}
		if hasCode(err, codeUniqueViolation) {
			return fmt.Errorf("system bucket %q already exists: %w", bucket.Name, err)
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Update persists name, description and type
func (r *bucketRepository) Update(ctx context.Context, bucket *domain.Bucket) error {
	query := `
		UPDATE buckets
		SET name = $3, description = $4, bucket_type = $5, updated_at = now()
		WHERE id = $1 AND account_id = $2
		RETURNING updated_at
	`

	err := r.q.QueryRowContext(ctx, query,
		bucket.ID,
		bucket.AccountID,
		bucket.Name,
		bucket.Description,
		string(bucket.BucketType),
	).Scan(&bucket.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket.ID)
		}
		return fmt.Errorf("failed to update bucket: %w", err)
	}
	return nil
}

// List retrieves the account's buckets ordered by name, optionally filtered by type
func (r *bucketRepository) List(ctx context.Context, accountID uuid.UUID, types ...domain.BucketType) ([]*domain.Bucket, error) {
	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE account_id = $1`
	args := []any{accountID}

	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		query += ` AND bucket_type = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY name, id`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	defer rows.Close()

	buckets := []*domain.Bucket{}
	for rows.Next() {
		bucket, err := scanBucket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate buckets: %w", err)
	}
	return buckets, nil
}

// FindOrCreateSystem inserts the system bucket unless the unique
// (account_id, name) index already holds one, then reads whichever row won.
func (r *bucketRepository) FindOrCreateSystem(ctx context.Context, bucket *domain.Bucket) (*domain.Bucket, error) {
	insert := `
		INSERT INTO buckets (id, account_id, name, description, bucket_type, system)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (account_id, name) WHERE system DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, insert,
		bucket.ID,
		bucket.AccountID,
		bucket.Name,
		bucket.Description,
		string(bucket.BucketType),
	)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return nil, fmt.Errorf("failed to create system bucket: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to create system bucket: %w", err)
	}

	query := `SELECT ` + bucketColumns + ` FROM buckets WHERE account_id = $1 AND name = $2 AND system`
	found, err := scanBucket(r.q.QueryRowContext(ctx, query, bucket.AccountID, bucket.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to get system bucket %q: %w", bucket.Name, err)
	}
	return found, nil
}

// HasEntries reports whether any entry references the bucket
func (r *bucketRepository) HasEntries(ctx context.Context, accountID, id uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM entries
			WHERE account_id = $1 AND (debit_bucket_id = $2 OR credit_bucket_id = $2)
		)
	`

	var exists bool
	if err := r.q.QueryRowContext(ctx, query, accountID, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check bucket entries: %w", err)
	}
	return exists, nil
}
