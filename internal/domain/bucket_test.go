package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket_Validate(t *testing.T) {
	accountID := uuid.New()

	tests := []struct {
		name      string
		bucket    Bucket
		wantErr   bool
		wantField string
	}{
		{
			name:    "Real Bucket should pass",
			bucket:  Bucket{ID: uuid.New(), AccountID: accountID, Name: "Checking", BucketType: BucketTypeReal},
			wantErr: false,
		},
		{
			name:    "Savings Bucket should pass",
			bucket:  Bucket{ID: uuid.New(), AccountID: accountID, Name: "Holiday", BucketType: BucketTypeSavings},
			wantErr: false,
		},
		{
			name:      "Bucket without Name should fail",
			bucket:    Bucket{ID: uuid.New(), AccountID: accountID, Name: "  ", BucketType: BucketTypeIncome},
			wantErr:   true,
			wantField: "name",
		},
		{
			name:      "Bucket without Account should fail",
			bucket:    Bucket{ID: uuid.New(), Name: "Groceries", BucketType: BucketTypeSpending},
			wantErr:   true,
			wantField: "account",
		},
		{
			name:      "Bucket with unknown type should fail",
			bucket:    Bucket{ID: uuid.New(), AccountID: accountID, Name: "Groceries", BucketType: BucketType("EQUITY")},
			wantErr:   true,
			wantField: "account_type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bucket.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			fe, ok := AsFieldErrors(err)
			require.True(t, ok)
			assert.True(t, fe.Has(tt.wantField), "expected an error on %s, got %v", tt.wantField, fe)
		})
	}
}

func TestBucket_ApplyDefaults(t *testing.T) {
	b := Bucket{Name: "Groceries"}
	b.ApplyDefaults()
	assert.Equal(t, BucketTypeSpending, b.BucketType)

	r := Bucket{Name: "Checking", BucketType: BucketTypeReal}
	r.ApplyDefaults()
	assert.Equal(t, BucketTypeReal, r.BucketType)
}

func TestBucketType_IsVirtual(t *testing.T) {
	assert.False(t, BucketTypeReal.IsVirtual())
	assert.True(t, BucketTypeIncome.IsVirtual())
	assert.True(t, BucketTypeSpending.IsVirtual())
	assert.True(t, BucketTypeSavings.IsVirtual())
}

func TestParseBucketType(t *testing.T) {
	got, err := ParseBucketType(" savings ")
	require.NoError(t, err)
	assert.Equal(t, BucketTypeSavings, got)

	_, err = ParseBucketType("asset")
	assert.Error(t, err)
}

func TestBucket_Balance(t *testing.T) {
	totals := LegTotals{
		Debits:  decimal.RequireFromString("1200.50"),
		Credits: decimal.RequireFromString("200.25"),
	}

	tests := []struct {
		name       string
		bucketType BucketType
		want       string
	}{
		{name: "Real balance is debits minus credits", bucketType: BucketTypeReal, want: "1000.25"},
		{name: "Income balance is credits minus debits", bucketType: BucketTypeIncome, want: "-1000.25"},
		{name: "Spending balance is credits minus debits", bucketType: BucketTypeSpending, want: "-1000.25"},
		{name: "Savings balance is credits minus debits", bucketType: BucketTypeSavings, want: "-1000.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Bucket{BucketType: tt.bucketType}
			assert.True(t, b.Balance(totals).Equal(decimal.RequireFromString(tt.want)),
				"got %s want %s", b.Balance(totals), tt.want)
		})
	}
}

func TestBucket_BalanceOfEmptyBucketIsZero(t *testing.T) {
	for _, bt := range BucketTypes {
		b := Bucket{BucketType: bt}
		assert.True(t, b.Balance(LegTotals{}).IsZero(), "%s should start at zero", bt)
	}
}
