package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// EntryView is an entry together with its legs and the direction money moved
type EntryView struct {
	Entry  *domain.Entry
	Debit  *domain.Bucket
	Credit *domain.Bucket
	Action domain.Action
	From   *domain.Bucket
	To     *domain.Bucket
}

// EntryPage is one page of entries, newest first
type EntryPage struct {
	Entries []EntryView
	Total   int
}

// View describes a single entry
func (s *Service) View(entry *domain.Entry, debit, credit *domain.Bucket) EntryView {
	from, to := domain.Flow(debit, credit)
	return EntryView{
		Entry:  entry,
		Debit:  debit,
		Credit: credit,
		Action: s.Classify(debit, credit),
		From:   from,
		To:     to,
	}
}

// ListEntries returns the account's entries, newest first, optionally only
// those touching filter.BucketID
func (s *Service) ListEntries(ctx context.Context, accountID uuid.UUID, filter domain.EntryFilter) (*EntryPage, error) {
	entries, err := s.EntryRepo.List(ctx, accountID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	total, err := s.EntryRepo.Count(ctx, accountID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}

	buckets, err := s.BucketRepo.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*domain.Bucket, len(buckets))
	for _, b := range buckets {
		byID[b.ID] = b
	}

	page := &EntryPage{Entries: make([]EntryView, 0, len(entries)), Total: total}
	for _, entry := range entries {
		debit, credit := byID[entry.DebitBucketID], byID[entry.CreditBucketID]
		if debit == nil || credit == nil {
			return nil, fmt.Errorf("entry %s references a missing bucket", entry.ID)
		}
		page.Entries = append(page.Entries, s.View(entry, debit, credit))
	}
	return page, nil
}
