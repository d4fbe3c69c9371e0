package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/bucketbook-backend/internal/adapter/repository/memory"
	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
)

func TestGetOverview(t *testing.T) {
	ctx := context.Background()
	repos := memory.NewStore().Repositories()

	account := &domain.Account{ID: uuid.New(), Name: "Household"}
	require.NoError(t, repos.Accounts.Create(ctx, account))
	mk := func(name string, bt domain.BucketType) *domain.Bucket {
		b := &domain.Bucket{ID: uuid.New(), AccountID: account.ID, Name: name, BucketType: bt}
		require.NoError(t, repos.Buckets.Create(ctx, b))
		return b
	}
	checking := mk("Checking", domain.BucketTypeReal)
	savings := mk("Savings", domain.BucketTypeReal)
	salary := mk("Salary", domain.BucketTypeIncome)
	groceries := mk("Groceries", domain.BucketTypeSpending)
	holiday := mk("Holiday", domain.BucketTypeSavings)

	engine := ledger.NewService(repos.Buckets, repos.Entries, nil)
	submit := func(action string, from, to *domain.Bucket, amount string) {
		result, err := engine.Submit(ctx, account.ID, ledger.Attributes{
			ledger.KeyAction: action,
			ledger.KeyFrom:   from.ID.String(),
			ledger.KeyTo:     to.ID.String(),
			ledger.KeyAmount: amount,
		})
		require.NoError(t, err)
		require.True(t, result.Success, "%v", result.Errors)
	}
	submit("income", salary, checking, "1000")
	submit("transfer", salary, groceries, "300")
	submit("transfer", salary, holiday, "200")
	submit("expense", groceries, checking, "45.50")
	submit("transfer", checking, savings, "150")

	service := NewDashboardService(repos.Buckets, repos.Entries)
	overview, err := service.GetOverview(ctx, account.ID)
	require.NoError(t, err)

	assert.True(t, overview.Cash.Equal(decimal.RequireFromString("954.50")), overview.Cash.String())
	assert.True(t, overview.Income.Equal(decimal.NewFromInt(500)), overview.Income.String())
	assert.True(t, overview.Spendable.Equal(decimal.RequireFromString("454.50")), overview.Spendable.String())
	assert.True(t, overview.Budgeted.Equal(overview.Cash))
	assert.True(t, overview.Balanced)

	require.Len(t, overview.Buckets, 5)
	assert.Equal(t, "Checking", overview.Buckets[0].Bucket.Name)
	assert.True(t, overview.Buckets[0].Balance.Equal(decimal.RequireFromString("804.50")))
}

func TestGetOverview_EmptyAccount(t *testing.T) {
	repos := memory.NewStore().Repositories()
	account := &domain.Account{ID: uuid.New(), Name: "Empty"}
	require.NoError(t, repos.Accounts.Create(context.Background(), account))

	overview, err := NewDashboardService(repos.Buckets, repos.Entries).GetOverview(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, overview.Cash.IsZero())
	assert.True(t, overview.Budgeted.IsZero())
	assert.True(t, overview.Balanced)
	assert.Empty(t, overview.Buckets)
}

type failingBuckets struct {
	domain.BucketRepository
	err error
}

func (f failingBuckets) List(ctx context.Context, accountID uuid.UUID, types ...domain.BucketType) ([]*domain.Bucket, error) {
	return nil, f.err
}

func TestGetOverview_StorageFault(t *testing.T) {
	repos := memory.NewStore().Repositories()
	boom := errors.New("connection reset")

	_, err := NewDashboardService(failingBuckets{err: boom}, repos.Entries).GetOverview(context.Background(), uuid.New())
	assert.ErrorIs(t, err, boom)
}
