package allocator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/bucketbook-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
)

type fixture struct {
	service   *Service
	engine    *ledger.Service
	repos     domain.Repositories
	accountID uuid.UUID
	checking  *domain.Bucket
	salary    *domain.Bucket
	groceries *domain.Bucket
	rent      *domain.Bucket
	holiday   *domain.Bucket
}

// newFixture builds an account whose Salary bucket holds 1000.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	repos := store.Repositories()

	account := &domain.Account{ID: uuid.New(), Name: "Household"}
	require.NoError(t, repos.Accounts.Create(ctx, account))

	mk := func(name string, bt domain.BucketType) *domain.Bucket {
		b := &domain.Bucket{ID: uuid.New(), AccountID: account.ID, Name: name, BucketType: bt}
		require.NoError(t, repos.Buckets.Create(ctx, b))
		return b
	}

	engine := ledger.NewService(repos.Buckets, repos.Entries, nil)
	f := &fixture{
		service:   NewService(store, engine, nil),
		engine:    engine,
		repos:     repos,
		accountID: account.ID,
		checking:  mk("Checking", domain.BucketTypeReal),
		salary:    mk("Salary", domain.BucketTypeIncome),
		groceries: mk("Groceries", domain.BucketTypeSpending),
		rent:      mk("Rent", domain.BucketTypeSpending),
		holiday:   mk("Holiday", domain.BucketTypeSavings),
	}
	f.service.Now = func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }

	income, err := engine.Submit(ctx, account.ID, ledger.Attributes{
		ledger.KeyAction: "income",
		ledger.KeyFrom:   f.salary.ID.String(),
		ledger.KeyTo:     f.checking.ID.String(),
		ledger.KeyAmount: "1000",
	})
	require.NoError(t, err)
	require.True(t, income.Success)
	return f
}

func (f *fixture) balance(t *testing.T, b *domain.Bucket) decimal.Decimal {
	t.Helper()
	bal, err := f.engine.BalanceOf(context.Background(), f.accountID, b.ID)
	require.NoError(t, err)
	return bal
}

func (f *fixture) entries(t *testing.T) int {
	t.Helper()
	n, err := f.repos.Entries.Count(context.Background(), f.accountID, domain.EntryFilter{})
	require.NoError(t, err)
	return n
}

func TestAllocate_WithinBalance(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Allocate(context.Background(), f.accountID, f.salary.ID, map[string]string{
		f.groceries.ID.String(): "400",
		f.rent.ID.String():      "500.50",
		f.holiday.ID.String():   "99.50",
	})
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Errors)

	assert.Equal(t, 3, result.EntriesCreated)
	assert.True(t, result.Total.Equal(decimal.NewFromInt(1000)))
	for _, e := range result.Entries {
		assert.Equal(t, f.salary.ID, e.DebitBucketID)
		assert.Equal(t, "eur", e.Currency)
		assert.Equal(t, f.service.Now(), e.Date)
	}

	assert.True(t, f.balance(t, f.salary).IsZero())
	assert.True(t, f.balance(t, f.groceries).Equal(decimal.NewFromInt(400)))
	assert.True(t, f.balance(t, f.rent).Equal(decimal.RequireFromString("500.50")))
	assert.Equal(t, 4, f.entries(t))
}

func TestAllocate_Description(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Allocate(context.Background(), f.accountID, f.salary.ID, map[string]string{
		f.groceries.ID.String(): "10",
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "Budget allocation: Salary → Groceries", result.Entries[0].Description)
	assert.Equal(t, f.groceries.ID, result.Entries[0].CreditBucketID)
}

func TestAllocate_SkipsBlankAndZeroAmounts(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Allocate(context.Background(), f.accountID, f.salary.ID, map[string]string{
		f.groceries.ID.String(): "500",
		f.rent.ID.String():      "0",
		f.holiday.ID.String():   "",
		uuid.NewString():        "abc",
		"not-a-bucket":          "-3",
	})
	require.NoError(t, err)
	require.True(t, result.Success, "%v", result.Errors)
	assert.Equal(t, 1, result.EntriesCreated)
	assert.Equal(t, f.groceries.ID, result.Entries[0].CreditBucketID)
}

func TestAllocate_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		income    func(f *fixture) uuid.UUID
		requested func(f *fixture) map[string]string
		wantErr   error
	}{
		{
			name:   "Insufficient balance should fail",
			income: func(f *fixture) uuid.UUID { return f.salary.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.groceries.ID.String(): "600", f.rent.ID.String(): "400.01"}
			},
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name:   "Unknown income bucket should fail",
			income: func(f *fixture) uuid.UUID { return uuid.New() },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.groceries.ID.String(): "10"}
			},
			wantErr: domain.ErrIncomeBucketNotFound,
		},
		{
			name:   "Unknown target bucket should roll back the others",
			income: func(f *fixture) uuid.UUID { return f.salary.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{
					"00000000-0000-0000-0000-000000000001": "10",
					f.groceries.ID.String():                "100",
					f.rent.ID.String():                     "200",
				}
			},
			wantErr: domain.ErrSpendingBucketNotFound,
		},
		{
			name:   "Allocating to the income bucket itself should roll back the others",
			income: func(f *fixture) uuid.UUID { return f.salary.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.groceries.ID.String(): "100", f.salary.ID.String(): "50"}
			},
			wantErr: domain.ErrSpendingBucketNotFound,
		},
		{
			name:   "Real bucket as the source should fail",
			income: func(f *fixture) uuid.UUID { return f.checking.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.groceries.ID.String(): "300"}
			},
			wantErr: domain.ErrIncomeBucketNotFound,
		},
		{
			name:   "Spending bucket as the source should fail",
			income: func(f *fixture) uuid.UUID { return f.groceries.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.rent.ID.String(): "1"}
			},
			wantErr: domain.ErrIncomeBucketNotFound,
		},
		{
			name:   "Real bucket as a target should roll back the others",
			income: func(f *fixture) uuid.UUID { return f.salary.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.groceries.ID.String(): "100", f.checking.ID.String(): "300"}
			},
			wantErr: domain.ErrSpendingBucketNotFound,
		},
		{
			name:   "Nothing to allocate should fail",
			income: func(f *fixture) uuid.UUID { return f.salary.ID },
			requested: func(f *fixture) map[string]string {
				return map[string]string{f.groceries.ID.String(): "0"}
			},
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			result, err := f.service.Allocate(context.Background(), f.accountID, tt.income(f), tt.requested(f))
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.True(t, errors.Is(result.Err, tt.wantErr), "got %v", result.Err)
			assert.NotEmpty(t, result.Errors)
			assert.Zero(t, result.EntriesCreated)
			assert.Empty(t, result.Entries)

			assert.Equal(t, 1, f.entries(t), "only the seeded income entry may remain")
			assert.True(t, f.balance(t, f.salary).Equal(decimal.NewFromInt(1000)))
			assert.True(t, f.balance(t, f.checking).Equal(decimal.NewFromInt(1000)))
		})
	}
}

func TestAllocate_InsufficientBalanceMessage(t *testing.T) {
	f := newFixture(t)

	result, err := f.service.Allocate(context.Background(), f.accountID, f.salary.ID, map[string]string{
		f.groceries.ID.String(): "1500",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Insufficient balance in income bucket. Available: 1000.00, Requested: 1500.00"}, result.Errors)
}

func TestAllocate_ForeignTargetIsNotFound(t *testing.T) {
	f := newFixture(t)
	other := newFixture(t)

	result, err := f.service.Allocate(context.Background(), f.accountID, f.salary.ID, map[string]string{
		other.groceries.ID.String(): "10",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, domain.ErrSpendingBucketNotFound)
	assert.Equal(t, 1, other.entries(t))
}

type failingTransactor struct{ err error }

func (f failingTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return f.err
}

func TestAllocate_StorageFault(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection refused")
	f.service.Transactor = failingTransactor{err: boom}

	result, err := f.service.Allocate(context.Background(), f.accountID, f.salary.ID, map[string]string{f.groceries.ID.String(): "1"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)
}

func TestPlan(t *testing.T) {
	plan, total := Plan(map[string]string{"b": "2.5", "a": "1", "c": "0", "d": "x"})
	require.Len(t, plan, 2)
	assert.Equal(t, "a", plan[0].BucketID)
	assert.Equal(t, "b", plan[1].BucketID)
	assert.True(t, total.Equal(decimal.RequireFromString("3.5")))
}
