package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BucketType represents the type of bucket in the system
type BucketType string

const (
	BucketTypeReal     BucketType = "REAL"
	BucketTypeIncome   BucketType = "INCOME"
	BucketTypeSpending BucketType = "SPENDING"
	BucketTypeSavings  BucketType = "SAVINGS"
)

// BucketTypes lists every known bucket type in display order.
var BucketTypes = []BucketType{BucketTypeReal, BucketTypeIncome, BucketTypeSpending, BucketTypeSavings}

// ParseBucketType accepts any casing of a known bucket type.
func ParseBucketType(s string) (BucketType, error) {
	t := BucketType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown bucket type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the known bucket types.
func (t BucketType) Valid() bool {
	switch t {
	case BucketTypeReal, BucketTypeIncome, BucketTypeSpending, BucketTypeSavings:
		return true
	}
	return false
}

// IsVirtual is true for budget buckets (everything that is not real money).
func (t BucketType) IsVirtual() bool {
	return t != BucketTypeReal
}

// IncreasingLeg is the side of an entry that grows a bucket of this type.
// Real buckets track cash and grow on debit; virtual buckets track budget and
// grow on credit.
func (t BucketType) IncreasingLeg() Leg {
	if t == BucketTypeReal {
		return LegDebit
	}
	return LegCredit
}

// Bucket is a place money can sit: a real account or a virtual budget bucket.
type Bucket struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Name        string
	Description string
	BucketType  BucketType
	System      bool // auto-created suspense bucket
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApplyDefaults fills unset attributes; buckets are SPENDING unless told otherwise.
func (b *Bucket) ApplyDefaults() {
	if b.BucketType == "" {
		b.BucketType = BucketTypeSpending
	}
}

// IsVirtual is true when the bucket is not a real account.
func (b *Bucket) IsVirtual() bool {
	return b.BucketType.IsVirtual()
}

// Balance derives the bucket balance from the totals of its entry legs.
func (b *Bucket) Balance(totals LegTotals) decimal.Decimal {
	return totals.Net(b.BucketType.IncreasingLeg())
}

// Validate ensures the bucket adheres to domain rules
// Returns FieldErrors if validation fails
func (b *Bucket) Validate() error {
	fe := FieldErrors{}

	if strings.TrimSpace(b.Name) == "" {
		fe.Add("name", "can't be blank")
	}

	if b.AccountID == uuid.Nil {
		fe.Add("account", "must exist")
	}

	if !b.BucketType.Valid() {
		fe.Add("account_type", "is not included in the list")
	}

	return fe.OrNil()
}
