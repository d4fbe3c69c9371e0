package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an entry is recorded without one.
const DefaultCurrency = "eur"

// Amounts are stored as NUMERIC(19, 4): four decimal places and at most
// fifteen integer digits.
const (
	AmountScale         = 4
	AmountIntegerDigits = 15
)

var maxAmount = decimal.New(1, AmountIntegerDigits)

// Leg is one side of a double-entry posting
type Leg string

const (
	LegDebit  Leg = "DEBIT"
	LegCredit Leg = "CREDIT"
)

// Action is the derived classification of an entry. It is never stored.
type Action string

const (
	ActionIncome   Action = "income"
	ActionExpense  Action = "expense"
	ActionTransfer Action = "transfer"
)

// ParseAction accepts any casing of a known action.
func ParseAction(s string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case ActionIncome, ActionExpense, ActionTransfer:
		return a, true
	}
	return "", false
}

// Classify derives the action from the types of the two legs:
//   - income:   real debit, virtual credit
//   - expense:  virtual debit, real credit
//   - transfer: real to real, or virtual to virtual
func Classify(debit, credit BucketType) Action {
	switch {
	case !debit.IsVirtual() && credit.IsVirtual():
		return ActionIncome
	case debit.IsVirtual() && !credit.IsVirtual():
		return ActionExpense
	default:
		return ActionTransfer
	}
}

// Flow returns the bucket money left and the bucket it arrived at. It is the
// inverse of the from/to transform applied when entries are submitted by
// action, so re-submitting (action, from, to) reproduces the same legs.
func Flow(debit, credit *Bucket) (from, to *Bucket) {
	if debit.IsVirtual() {
		return debit, credit
	}
	return credit, debit
}

// LegTotals holds the summed amounts a bucket received on each leg.
type LegTotals struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// Net is the balance for a bucket whose increasing side is leg.
func (t LegTotals) Net(increasing Leg) decimal.Decimal {
	if increasing == LegDebit {
		return t.Debits.Sub(t.Credits)
	}
	return t.Credits.Sub(t.Debits)
}

// Add records amount on leg.
func (t LegTotals) Add(leg Leg, amount decimal.Decimal) LegTotals {
	if leg == LegDebit {
		t.Debits = t.Debits.Add(amount)
	} else {
		t.Credits = t.Credits.Add(amount)
	}
	return t
}

// Entry is one balanced posting with a debit and a credit leg.
type Entry struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Date           time.Time
	Currency       string
	Amount         decimal.Decimal // always positive
	Description    string
	DebitBucketID  uuid.UUID
	CreditBucketID uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ApplyDefaults fills the date and currency when they are unset.
func (e *Entry) ApplyDefaults(now time.Time) {
	if e.Date.IsZero() {
		e.Date = now
	}
	if strings.TrimSpace(e.Currency) == "" {
		e.Currency = DefaultCurrency
	}
	e.Currency = strings.ToLower(strings.TrimSpace(e.Currency))
}

// Bind points the entry at its legs. The owning account is derived from the
// debit bucket when it has not been set.
func (e *Entry) Bind(debit, credit *Bucket) {
	if debit != nil {
		e.DebitBucketID = debit.ID
		if e.AccountID == uuid.Nil {
			e.AccountID = debit.AccountID
		}
	}
	if credit != nil {
		e.CreditBucketID = credit.ID
	}
}

// Validate checks the entry against its resolved legs. A nil bucket means the
// reference could not be resolved.
func (e *Entry) Validate(debit, credit *Bucket) error {
	fe := FieldErrors{}

	switch {
	case !e.Amount.IsPositive():
		fe.Add("amount", "must be greater than 0")
	case !e.Amount.Equal(e.Amount.Truncate(AmountScale)):
		fe.Add("amount", fmt.Sprintf("can't have more than %d decimal places", AmountScale))
	case e.Amount.GreaterThanOrEqual(maxAmount):
		fe.Add("amount", "is too large")
	}

	if debit == nil {
		fe.Add("debit_account", "must exist")
	}
	if credit == nil {
		fe.Add("credit_account", "must exist")
	}

	if debit != nil && credit != nil {
		if debit.ID == credit.ID {
			fe.Add("credit_account", "must be different to the debit account")
		}
		if e.DebitBucketID != debit.ID || e.CreditBucketID != credit.ID {
			fe.Add("base", "legs do not match the entry")
		}
	}

	if debit != nil && e.AccountID != debit.AccountID {
		fe.Add("account", "must own the debit account")
	}
	if credit != nil && e.AccountID != credit.AccountID {
		fe.Add("credit_account", "must belong to the same account")
	}

	if e.Currency == "" {
		fe.Add("currency", "can't be blank")
	}

	return fe.OrNil()
}
