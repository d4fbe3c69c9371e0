package dashboard

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// BucketBalance is one line of the overview
type BucketBalance struct {
	Bucket  *domain.Bucket
	Balance decimal.Decimal
}

// Overview compares the money held in real buckets with the money assigned
// to virtual ones
type Overview struct {
	Cash      decimal.Decimal // real buckets
	Income    decimal.Decimal // income buckets, not yet allocated
	Spendable decimal.Decimal // spending and savings buckets
	Budgeted  decimal.Decimal // every virtual bucket
	Balanced  bool
	Buckets   []BucketBalance
}

// DashboardService handles dashboard-related operations
type DashboardService struct {
	BucketRepo domain.BucketRepository
	EntryRepo  domain.EntryRepository
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(bucketRepo domain.BucketRepository, entryRepo domain.EntryRepository) *DashboardService {
	return &DashboardService{
		BucketRepo: bucketRepo,
		EntryRepo:  entryRepo,
	}
}

// GetOverview totals the account's balances
// Logic:
//   - Cash: sum of REAL bucket balances
//   - Income: sum of INCOME bucket balances
//   - Spendable: sum of SPENDING and SAVINGS bucket balances
//   - Budgeted: Income + Spendable
//   - Balanced: Cash equals Budgeted. Every entry moves both sides by the
//     same amount or stays within one side, so a difference means broken data.
func (s *DashboardService) GetOverview(ctx context.Context, accountID uuid.UUID) (*Overview, error) {
	buckets, err := s.BucketRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	totals, err := s.EntryRepo.TotalsByBucket(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum entries: %w", err)
	}

	overview := &Overview{
		Cash:      decimal.Zero,
		Income:    decimal.Zero,
		Spendable: decimal.Zero,
		Buckets:   make([]BucketBalance, 0, len(buckets)),
	}
	for _, bucket := range buckets {
		balance := bucket.Balance(totals[bucket.ID])
		overview.Buckets = append(overview.Buckets, BucketBalance{Bucket: bucket, Balance: balance})

		switch bucket.BucketType {
		case domain.BucketTypeReal:
			overview.Cash = overview.Cash.Add(balance)
		case domain.BucketTypeIncome:
			overview.Income = overview.Income.Add(balance)
		default:
			overview.Spendable = overview.Spendable.Add(balance)
		}
	}

	overview.Budgeted = overview.Income.Add(overview.Spendable)
	overview.Balanced = overview.Cash.Equal(overview.Budgeted)
	return overview, nil
}
