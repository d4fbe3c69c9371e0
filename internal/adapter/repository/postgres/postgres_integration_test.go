//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// setupDB starts a disposable PostgreSQL container and returns a migrated
// connection to it.
func setupDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bucketbook"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := NewDB(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(nil))
	// a second run is a no-op
	require.NoError(t, db.Migrate(nil))
	return db
}

type seed struct {
	account  *domain.Account
	checking *domain.Bucket
	salary   *domain.Bucket
	food     *domain.Bucket
}

func seedAccount(t *testing.T, repos domain.Repositories) seed {
	t.Helper()
	ctx := context.Background()

	account := &domain.Account{ID: uuid.New(), Name: "Household"}
	require.NoError(t, repos.Accounts.Create(ctx, account))

	mk := func(name string, bt domain.BucketType) *domain.Bucket {
		b := &domain.Bucket{ID: uuid.New(), AccountID: account.ID, Name: name, BucketType: bt}
		require.NoError(t, repos.Buckets.Create(ctx, b))
		return b
	}
	return seed{
		account:  account,
		checking: mk("Checking", domain.BucketTypeReal),
		salary:   mk("Salary", domain.BucketTypeIncome),
		food:     mk("Food", domain.BucketTypeSpending),
	}
}

func entry(s seed, debit, credit *domain.Bucket, amount string, date time.Time) *domain.Entry {
	return &domain.Entry{
		ID:             uuid.New(),
		AccountID:      s.account.ID,
		Date:           date,
		Currency:       "eur",
		Amount:         decimal.RequireFromString(amount),
		DebitBucketID:  debit.ID,
		CreditBucketID: credit.ID,
	}
}

func TestIntegration_Repositories(t *testing.T) {
	db := setupDB(t)
	repos := db.Repositories()
	ctx := context.Background()
	s := seedAccount(t, repos)

	t.Run("buckets are scoped to their account", func(t *testing.T) {
		other := seedAccount(t, repos)

		got, err := repos.Buckets.GetByID(ctx, s.account.ID, s.checking.ID)
		require.NoError(t, err)
		assert.Equal(t, "Checking", got.Name)
		assert.Equal(t, domain.BucketTypeReal, got.BucketType)

		_, err = repos.Buckets.GetByID(ctx, other.account.ID, s.checking.ID)
		assert.ErrorIs(t, err, domain.ErrBucketNotFound)

		virtual, err := repos.Buckets.List(ctx, s.account.ID, domain.BucketTypeIncome, domain.BucketTypeSpending)
		require.NoError(t, err)
		require.Len(t, virtual, 2)
		assert.Equal(t, "Food", virtual[0].Name)
	})

	t.Run("entries and totals", func(t *testing.T) {
		day := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)
		income := entry(s, s.checking, s.salary, "2500.00", day)
		expense := entry(s, s.food, s.checking, "89.99", day.AddDate(0, 0, 1))
		require.NoError(t, repos.Entries.Create(ctx, income))
		require.NoError(t, repos.Entries.Create(ctx, expense))
		assert.False(t, income.CreatedAt.IsZero())

		totals, err := repos.Entries.Totals(ctx, s.account.ID, s.checking.ID)
		require.NoError(t, err)
		assert.True(t, s.checking.Balance(totals).Equal(decimal.RequireFromString("2410.01")))

		byBucket, err := repos.Entries.TotalsByBucket(ctx, s.account.ID)
		require.NoError(t, err)
		assert.True(t, s.salary.Balance(byBucket[s.salary.ID]).Equal(decimal.NewFromInt(2500)))
		assert.True(t, s.food.Balance(byBucket[s.food.ID]).Equal(decimal.RequireFromString("-89.99")))

		listed, err := repos.Entries.List(ctx, s.account.ID, domain.EntryFilter{BucketID: &s.food.ID})
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, expense.ID, listed[0].ID)

		page, err := repos.Entries.List(ctx, s.account.ID, domain.EntryFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, expense.ID, page[0].ID, "newest first")

		n, err := repos.Entries.Count(ctx, s.account.ID, domain.EntryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		has, err := repos.Buckets.HasEntries(ctx, s.account.ID, s.food.ID)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("entries cannot use buckets of another account", func(t *testing.T) {
		other := seedAccount(t, repos)
		err := repos.Entries.Create(ctx, entry(s, s.checking, other.salary, "1", time.Now()))
		assert.ErrorIs(t, err, domain.ErrBucketNotFound)
	})

	t.Run("update and delete", func(t *testing.T) {
		e := entry(s, s.checking, s.salary, "10", time.Now().UTC())
		require.NoError(t, repos.Entries.Create(ctx, e))

		e.Amount = decimal.NewFromInt(12)
		e.Description = "corrected"
		require.NoError(t, repos.Entries.Update(ctx, e))

		got, err := repos.Entries.GetByID(ctx, s.account.ID, e.ID)
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(12)))
		assert.Equal(t, "corrected", got.Description)

		require.NoError(t, repos.Entries.Delete(ctx, s.account.ID, e.ID))
		_, err = repos.Entries.GetByID(ctx, s.account.ID, e.ID)
		assert.ErrorIs(t, err, domain.ErrEntryNotFound)
	})
}

func TestIntegration_FindOrCreateSystemIsAtomic(t *testing.T) {
	db := setupDB(t)
	repos := db.Repositories()
	s := seedAccount(t, repos)

	const workers = 8
	ids := make([]uuid.UUID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := repos.Buckets.FindOrCreateSystem(context.Background(), &domain.Bucket{
				ID:         uuid.New(),
				AccountID:  s.account.ID,
				Name:       "Unknown Income",
				BucketType: domain.BucketTypeIncome,
			})
			if assert.NoError(t, err) {
				ids[i] = b.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestIntegration_WithinTransactionRollsBack(t *testing.T) {
	db := setupDB(t)
	s := seedAccount(t, db.Repositories())
	ctx := context.Background()
	boom := errors.New("abort")

	err := db.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		_, err := repos.Buckets.GetByIDForUpdate(ctx, s.account.ID, s.salary.ID)
		require.NoError(t, err)
		require.NoError(t, repos.Entries.Create(ctx, entry(s, s.salary, s.food, "5", time.Now())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := db.Repositories().Entries.Count(ctx, s.account.ID, domain.EntryFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
