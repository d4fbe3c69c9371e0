package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// Attribute keys accepted by Submit and Update
const (
	KeyAction      = "action"
	KeyFrom        = "from_account_id"
	KeyTo          = "to_account_id"
	KeyDebit       = "debit_account_id"
	KeyCredit      = "credit_account_id"
	KeyAmount      = "amount"
	KeyDate        = "date"
	KeyCurrency    = "currency"
	KeyDescription = "description"
)

// Error fields reported for rejected entries
const (
	FieldAmount        = "amount"
	FieldAction        = "action"
	FieldFrom          = "from_account"
	FieldTo            = "to_account"
	FieldDebitAccount  = "debit_account"
	FieldCreditAccount = "credit_account"
	FieldDate          = "date"
)

// Attributes is the raw bag of entry attributes, as submitted by a form or an
// API call. A key that is present was provided, even when its value is empty.
type Attributes map[string]string

// Has reports whether key was provided
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Get returns the trimmed value of key
func (a Attributes) Get(key string) string {
	return strings.TrimSpace(a[key])
}

func parseAmount(raw string, fe domain.FieldErrors) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		fe.Add(FieldAmount, "can't be blank")
		return decimal.Zero
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		fe.Add(FieldAmount, "is not a number")
		return decimal.Zero
	}
	return amount
}

var dateLayouts = []string{"2006-01-02", time.RFC3339}

// parseDate returns the zero time for a blank value so defaults apply.
func parseDate(raw string, fe domain.FieldErrors) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d
		}
	}
	fe.Add(FieldDate, "is not a valid date")
	return time.Time{}
}

func parseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
