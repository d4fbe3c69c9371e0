package domain

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	// Create creates a new account
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

// BucketRepository defines the interface for bucket persistence operations.
// Every lookup is scoped to the owning account; a bucket of another account
// is reported as ErrBucketNotFound.
type BucketRepository interface {
	// GetByID retrieves a bucket by its ID
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Bucket, error)

	// GetByIDForUpdate is GetByID that also locks the row until the surrounding
	// transaction ends (a plain read outside a transaction)
	GetByIDForUpdate(ctx context.Context, accountID, id uuid.UUID) (*Bucket, error)

	// Create creates a new bucket
	Create(ctx context.Context, bucket *Bucket) error

	// Update persists name, description and type changes
	Update(ctx context.Context, bucket *Bucket) error

	// List retrieves the account's buckets ordered by name, optionally filtered by type
	// If no type is given, returns all buckets
	List(ctx context.Context, accountID uuid.UUID, types ...BucketType) ([]*Bucket, error)

	// FindOrCreateSystem returns the system bucket with the same account and
	// name, creating it from bucket when it does not exist. Must be atomic.
	FindOrCreateSystem(ctx context.Context, bucket *Bucket) (*Bucket, error)

	// HasEntries reports whether any entry references the bucket
	HasEntries(ctx context.Context, accountID, id uuid.UUID) (bool, error)
}

// EntryFilter narrows entry listings
type EntryFilter struct {
	BucketID *uuid.UUID // entries touching this bucket on either leg
	Limit    int        // 0 means no limit
	Offset   int
}

// EntryRepository defines the interface for entry persistence operations
type EntryRepository interface {
	// Create creates a new entry
	Create(ctx context.Context, entry *Entry) error

	// Update overwrites a persisted entry
	Update(ctx context.Context, entry *Entry) error

	// Delete removes an entry
	Delete(ctx context.Context, accountID, id uuid.UUID) error

	// GetByID retrieves an entry by its ID
	GetByID(ctx context.Context, accountID, id uuid.UUID) (*Entry, error)

	// List retrieves entries newest first
	List(ctx context.Context, accountID uuid.UUID, filter EntryFilter) ([]*Entry, error)

	// Count returns the number of entries matching filter (Limit/Offset ignored)
	Count(ctx context.Context, accountID uuid.UUID, filter EntryFilter) (int, error)

	// Totals sums the amounts a bucket received on each leg
	Totals(ctx context.Context, accountID, bucketID uuid.UUID) (LegTotals, error)

	// TotalsByBucket is Totals for every bucket of the account that has entries
	TotalsByBucket(ctx context.Context, accountID uuid.UUID) (map[uuid.UUID]LegTotals, error)
}

// Repositories bundles the repositories of one storage backend, or of one
// open transaction.
type Repositories struct {
	Accounts AccountRepository
	Buckets  BucketRepository
	Entries  EntryRepository
}

// Transactor runs fn atomically: every write made through repos commits
// together when fn returns nil and none survive when it returns an error.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
