package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// entryRepository implements domain.EntryRepository
type entryRepository struct {
	s  *Store
	tx *txState
}

// checkLegs mirrors the foreign keys of the SQL schema.
func (r *entryRepository) checkLegs(entry *domain.Entry) error {
	for _, id := range []uuid.UUID{entry.DebitBucketID, entry.CreditBucketID} {
		bucket, exists := r.s.buckets[id]
		if !exists || bucket.AccountID != entry.AccountID {
			return fmt.Errorf("entry references unknown bucket %s: %w", id, domain.ErrBucketNotFound)
		}
	}
	return nil
}

// Create stores a copy of entry
func (r *entryRepository) Create(ctx context.Context, entry *domain.Entry) error {
	if entry.ID == uuid.Nil {
		return fmt.Errorf("entry ID is required")
	}

	defer r.s.guard(r.tx, true)()

	if _, exists := r.s.entries[entry.ID]; exists {
		return fmt.Errorf("entry %s already exists", entry.ID)
	}
	if err := r.checkLegs(entry); err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	now := r.s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now

	entryCopy := *entry
	r.s.entries[entry.ID] = &entryCopy
	r.s.next++
	r.s.seq[entry.ID] = r.s.next

	if r.tx != nil {
		accountID, id := entry.AccountID, entry.ID
		r.tx.onRollback(func() { _ = r.Delete(ctx, accountID, id) })
	}
	return nil
}

// Update overwrites a stored entry
func (r *entryRepository) Update(ctx context.Context, entry *domain.Entry) error {
	defer r.s.guard(r.tx, true)()

	stored, exists := r.s.entries[entry.ID]
	if !exists || stored.AccountID != entry.AccountID {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, entry.ID)
	}
	if err := r.checkLegs(entry); err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	previous := *stored
	entry.CreatedAt = stored.CreatedAt
	entry.UpdatedAt = r.s.now()
	*stored = *entry

	if r.tx != nil {
		r.tx.onRollback(func() { *stored = previous })
	}
	return nil
}

// Delete removes an entry
func (r *entryRepository) Delete(ctx context.Context, accountID, id uuid.UUID) error {
	defer r.s.guard(r.tx, true)()

	stored, exists := r.s.entries[id]
	if !exists || stored.AccountID != accountID {
		return fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
	}
	delete(r.s.entries, id)
	delete(r.s.seq, id)
	return nil
}

// GetByID returns a copy of the entry
func (r *entryRepository) GetByID(ctx context.Context, accountID, id uuid.UUID) (*domain.Entry, error) {
	defer r.s.guard(r.tx, false)()

	stored, exists := r.s.entries[id]
	if !exists || stored.AccountID != accountID {
		return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, id)
	}
	entryCopy := *stored
	return &entryCopy, nil
}

func (r *entryRepository) matching(accountID uuid.UUID, filter domain.EntryFilter) []*domain.Entry {
	var result []*domain.Entry
	for _, entry := range r.s.entries {
		if entry.AccountID != accountID {
			continue
		}
		if filter.BucketID != nil && entry.DebitBucketID != *filter.BucketID && entry.CreditBucketID != *filter.BucketID {
			continue
		}
		entryCopy := *entry
		result = append(result, &entryCopy)
	}
	return result
}

// List returns entries newest first, then most recently recorded first
func (r *entryRepository) List(ctx context.Context, accountID uuid.UUID, filter domain.EntryFilter) ([]*domain.Entry, error) {
	defer r.s.guard(r.tx, false)()

	result := r.matching(accountID, filter)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return r.s.seq[result[i].ID] > r.s.seq[result[j].ID]
	})

	// Apply limit and offset
	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.Entry{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	if result == nil {
		result = []*domain.Entry{}
	}
	return result, nil
}

// Count returns the number of matching entries
func (r *entryRepository) Count(ctx context.Context, accountID uuid.UUID, filter domain.EntryFilter) (int, error) {
	defer r.s.guard(r.tx, false)()
	return len(r.matching(accountID, filter)), nil
}

// Totals sums the bucket's debit and credit legs
func (r *entryRepository) Totals(ctx context.Context, accountID, bucketID uuid.UUID) (domain.LegTotals, error) {
	defer r.s.guard(r.tx, false)()

	totals := domain.LegTotals{}
	for _, entry := range r.s.entries {
		if entry.AccountID != accountID {
			continue
		}
		if entry.DebitBucketID == bucketID {
			totals = totals.Add(domain.LegDebit, entry.Amount)
		}
		if entry.CreditBucketID == bucketID {
			totals = totals.Add(domain.LegCredit, entry.Amount)
		}
	}
	return totals, nil
}

// TotalsByBucket sums both legs of every bucket in one pass
func (r *entryRepository) TotalsByBucket(ctx context.Context, accountID uuid.UUID) (map[uuid.UUID]domain.LegTotals, error) {
	defer r.s.guard(r.tx, false)()

	totals := make(map[uuid.UUID]domain.LegTotals)
	for _, entry := range r.s.entries {
		if entry.AccountID != accountID {
			continue
		}
		totals[entry.DebitBucketID] = totals[entry.DebitBucketID].Add(domain.LegDebit, entry.Amount)
		totals[entry.CreditBucketID] = totals[entry.CreditBucketID].Add(domain.LegCredit, entry.Amount)
	}
	return totals, nil
}
