package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// bucketRepository implements domain.BucketRepository
type bucketRepository struct {
	s  *Store
	tx *txState
}

func (r *bucketRepository) get(accountID, id uuid.UUID) (*domain.Bucket, error) {
	bucket, exists := r.s.buckets[id]
	if !exists || bucket.AccountID != accountID {
		return nil, fmt.Errorf("%w: %s", domain.ErrBucketNotFound, id)
	}
	bucketCopy := *bucket
	return &bucketCopy, nil
}

// GetByID returns a copy of the bucket owned by accountID
func (r *bucketRepository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*domain.Bucket, error) {
	defer r.s.guard(r.tx, false)()
	return r.get(accountID, id)
}

// GetByIDForUpdate is GetByID; a transaction already holds the store lock
func (r *bucketRepository) GetByIDForUpdate(ctx context.Context, accountID, id uuid.UUID) (*domain.Bucket, error) {
	return r.GetByID(ctx, accountID, id)
}

func (r *bucketRepository) create(bucket *domain.Bucket) error {
	if bucket.ID == uuid.Nil {
		return fmt.Errorf("bucket ID is required")
	}
	if _, exists := r.s.buckets[bucket.ID]; exists {
		return fmt.Errorf("bucket %s already exists", bucket.ID)
	}
	if _, exists := r.s.accounts[bucket.AccountID]; !exists {
		return fmt.Errorf("failed to create bucket: %w", domain.ErrAccountNotFound)
	}
	if bucket.System && r.findSystem(bucket.AccountID, bucket.Name) != nil {
		return fmt.Errorf("system bucket %q already exists", bucket.Name)
	}

	now := r.s.now()
	bucket.CreatedAt, bucket.UpdatedAt = now, now

	bucketCopy := *bucket
	r.s.buckets[bucket.ID] = &bucketCopy

	if r.tx != nil {
		id := bucket.ID
		r.tx.onRollback(func() { delete(r.s.buckets, id) })
	}
	return nil
}

// Create stores a copy of bucket
func (r *bucketRepository) Create(ctx context.Context, bucket *domain.Bucket) error {
	defer r.s.guard(r.tx, true)()
	return r.create(bucket)
}

// Update overwrites name, description and type
func (r *bucketRepository) Update(ctx context.Context, bucket *domain.Bucket) error {
	defer r.s.guard(r.tx, true)()

	stored, exists := r.s.buckets[bucket.ID]
	if !exists || stored.AccountID != bucket.AccountID {
		return fmt.Errorf("%w: %s", domain.ErrBucketNotFound, bucket.ID)
	}

	previous := *stored
	bucket.UpdatedAt = r.s.now()

	stored.Name = bucket.Name
	stored.Description = bucket.Description
	stored.BucketType = bucket.BucketType
	stored.UpdatedAt = bucket.UpdatedAt

	if r.tx != nil {
		r.tx.onRollback(func() { *stored = previous })
	}
	return nil
}

// List returns the account's buckets ordered by name
func (r *bucketRepository) List(ctx context.Context, accountID uuid.UUID, types ...domain.BucketType) ([]*domain.Bucket, error) {
	defer r.s.guard(r.tx, false)()

	wanted := make(map[domain.BucketType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	result := []*domain.Bucket{}
	for _, bucket := range r.s.buckets {
		if bucket.AccountID != accountID {
			continue
		}
		if len(wanted) > 0 && !wanted[bucket.BucketType] {
			continue
		}
		bucketCopy := *bucket
		result = append(result, &bucketCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (r *bucketRepository) findSystem(accountID uuid.UUID, name string) *domain.Bucket {
	for _, bucket := range r.s.buckets {
		if bucket.System && bucket.AccountID == accountID && bucket.Name == name {
			return bucket
		}
	}
	return nil
}

// FindOrCreateSystem looks up and creates under one write lock
func (r *bucketRepository) FindOrCreateSystem(ctx context.Context, bucket *domain.Bucket) (*domain.Bucket, error) {
	defer r.s.guard(r.tx, true)()

	if existing := r.findSystem(bucket.AccountID, bucket.Name); existing != nil {
		bucketCopy := *existing
		return &bucketCopy, nil
	}

	created := *bucket
	created.System = true
	if err := r.create(&created); err != nil {
		return nil, err
	}
	return &created, nil
}

// HasEntries reports whether any entry uses the bucket on either leg
func (r *bucketRepository) HasEntries(ctx context.Context, accountID, id uuid.UUID) (bool, error) {
	defer r.s.guard(r.tx, false)()

	for _, entry := range r.s.entries {
		if entry.AccountID != accountID {
			continue
		}
		if entry.DebitBucketID == id || entry.CreditBucketID == id {
			return true, nil
		}
	}
	return false, nil
}
