package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBucket(accountID uuid.UUID, name string, bt BucketType) *Bucket {
	return &Bucket{ID: uuid.New(), AccountID: accountID, Name: name, BucketType: bt}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		debit  BucketType
		credit BucketType
		want   Action
	}{
		{BucketTypeReal, BucketTypeIncome, ActionIncome},
		{BucketTypeReal, BucketTypeSpending, ActionIncome},
		{BucketTypeReal, BucketTypeSavings, ActionIncome},
		{BucketTypeSpending, BucketTypeReal, ActionExpense},
		{BucketTypeSavings, BucketTypeReal, ActionExpense},
		{BucketTypeIncome, BucketTypeReal, ActionExpense},
		{BucketTypeReal, BucketTypeReal, ActionTransfer},
		{BucketTypeIncome, BucketTypeSpending, ActionTransfer},
		{BucketTypeSpending, BucketTypeSavings, ActionTransfer},
	}

	for _, tt := range tests {
		t.Run(string(tt.debit)+"->"+string(tt.credit), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.debit, tt.credit))
			// Repeated calls agree.
			assert.Equal(t, Classify(tt.debit, tt.credit), Classify(tt.debit, tt.credit))
		})
	}
}

func TestParseAction(t *testing.T) {
	a, ok := ParseAction("Income")
	assert.True(t, ok)
	assert.Equal(t, ActionIncome, a)

	_, ok = ParseAction("refund")
	assert.False(t, ok)
}

func TestFlow(t *testing.T) {
	accountID := uuid.New()
	checking := newBucket(accountID, "Checking", BucketTypeReal)
	savings := newBucket(accountID, "Savings Account", BucketTypeReal)
	salary := newBucket(accountID, "Salary", BucketTypeIncome)
	groceries := newBucket(accountID, "Groceries", BucketTypeSpending)

	tests := []struct {
		name     string
		debit    *Bucket
		credit   *Bucket
		wantFrom *Bucket
		wantTo   *Bucket
	}{
		{name: "income flows from the income bucket to the real bucket", debit: checking, credit: salary, wantFrom: salary, wantTo: checking},
		{name: "expense flows from the spending bucket to the real bucket", debit: groceries, credit: checking, wantFrom: groceries, wantTo: checking},
		{name: "real transfer flows from the credited bucket", debit: savings, credit: checking, wantFrom: checking, wantTo: savings},
		{name: "virtual transfer flows from the debited bucket", debit: salary, credit: groceries, wantFrom: salary, wantTo: groceries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := Flow(tt.debit, tt.credit)
			assert.Equal(t, tt.wantFrom.ID, from.ID)
			assert.Equal(t, tt.wantTo.ID, to.ID)
		})
	}
}

func TestLegTotals_Add(t *testing.T) {
	totals := LegTotals{}
	totals = totals.Add(LegDebit, decimal.NewFromInt(10))
	totals = totals.Add(LegCredit, decimal.NewFromInt(4))
	totals = totals.Add(LegDebit, decimal.NewFromInt(1))

	assert.True(t, totals.Debits.Equal(decimal.NewFromInt(11)))
	assert.True(t, totals.Credits.Equal(decimal.NewFromInt(4)))
	assert.True(t, totals.Net(LegDebit).Equal(decimal.NewFromInt(7)))
	assert.True(t, totals.Net(LegCredit).Equal(decimal.NewFromInt(-7)))
}

func TestEntry_ApplyDefaults(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	e := Entry{}
	e.ApplyDefaults(now)
	assert.Equal(t, now, e.Date)
	assert.Equal(t, "eur", e.Currency)

	date := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	e = Entry{Date: date, Currency: " AUD "}
	e.ApplyDefaults(now)
	assert.Equal(t, date, e.Date)
	assert.Equal(t, "aud", e.Currency)
}

func TestEntry_Validate(t *testing.T) {
	accountID := uuid.New()
	checking := newBucket(accountID, "Checking", BucketTypeReal)
	salary := newBucket(accountID, "Salary", BucketTypeIncome)
	foreign := newBucket(uuid.New(), "Foreign", BucketTypeIncome)

	build := func(amount string, debit, credit *Bucket) Entry {
		e := Entry{Amount: decimal.RequireFromString(amount)}
		e.ApplyDefaults(time.Now())
		e.Bind(debit, credit)
		return e
	}

	tests := []struct {
		name       string
		entry      Entry
		debit      *Bucket
		credit     *Bucket
		wantFields []string
	}{
		{
			name:   "Income entry should pass",
			entry:  build("1000", checking, salary),
			debit:  checking,
			credit: salary,
		},
		{
			name:       "Zero amount should fail",
			entry:      build("0", checking, salary),
			debit:      checking,
			credit:     salary,
			wantFields: []string{"amount"},
		},
		{
			name:       "Negative amount should fail",
			entry:      build("-5", checking, salary),
			debit:      checking,
			credit:     salary,
			wantFields: []string{"amount"},
		},
		{
			name:       "Same bucket on both legs should fail",
			entry:      build("10", checking, checking),
			debit:      checking,
			credit:     checking,
			wantFields: []string{"credit_account"},
		},
		{
			name:       "Missing buckets should fail",
			entry:      build("10", nil, nil),
			wantFields: []string{"debit_account", "credit_account"},
		},
		{
			name:       "Bucket from another account should fail",
			entry:      build("10", checking, foreign),
			debit:      checking,
			credit:     foreign,
			wantFields: []string{"credit_account"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate(tt.debit, tt.credit)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			fe, _ := AsFieldErrors(err)
			for _, field := range tt.wantFields {
				assert.True(t, fe.Has(field), "expected an error on %s, got %v", field, fe)
			}
		})
	}
}

func TestEntry_BindDerivesAccount(t *testing.T) {
	accountID := uuid.New()
	checking := newBucket(accountID, "Checking", BucketTypeReal)
	salary := newBucket(accountID, "Salary", BucketTypeIncome)

	e := Entry{}
	e.Bind(checking, salary)

	assert.Equal(t, accountID, e.AccountID)
	assert.Equal(t, checking.ID, e.DebitBucketID)
	assert.Equal(t, salary.ID, e.CreditBucketID)
}

func TestEntry_ValidateRejectsForeignOwner(t *testing.T) {
	accountID := uuid.New()
	checking := newBucket(accountID, "Checking", BucketTypeReal)
	salary := newBucket(accountID, "Salary", BucketTypeIncome)

	e := Entry{AccountID: uuid.New(), Amount: decimal.NewFromInt(5), Currency: "eur"}
	e.Bind(checking, salary)

	fe, ok := AsFieldErrors(e.Validate(checking, salary))
	require.True(t, ok)
	assert.True(t, fe.Has("account"))
}
