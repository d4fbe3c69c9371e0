// Package ofx reads bank and credit card statements in Open Financial
// Exchange format, both the XML flavour (OFX 2.x) and the SGML flavour
// (OFX 1.x) whose leaf elements are never closed.
package ofx

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when the statement carries no CURDEF
const DefaultCurrency = "AUD"

// MaxSize bounds the statements Parse accepts
const MaxSize = 10 << 20

var (
	// ErrMalformed is returned when the document cannot be read as OFX
	ErrMalformed = errors.New("malformed OFX document")
	ErrTooLarge  = fmt.Errorf("statement exceeds %d bytes: %w", MaxSize, ErrMalformed)
)

// AccountKind tells bank statements from credit card statements
type AccountKind string

const (
	KindUnknown    AccountKind = ""
	KindBank       AccountKind = "bank"
	KindCreditCard AccountKind = "credit_card"
)

// Action is the direction of a statement line as seen by the ledger
type Action string

const (
	ActionIncome  Action = "Income"
	ActionExpense Action = "Expense"
)

// Account describes the statement's source account
type Account struct {
	Kind        AccountKind
	AccountID   string
	BankID      string
	AccountType string
}

// Transaction is one STMTTRN record
type Transaction struct {
	FITID        string
	Type         string
	Date         time.Time
	Amount       decimal.Decimal // absolute value
	SignedAmount decimal.Decimal
	Currency     string
	Description  string
	Action       Action
}

// Reject is a record whose amount or date could not be read
type Reject struct {
	FITID  string
	Reason string
}

// Statement is the parsed document
type Statement struct {
	Currency     string
	Account      Account
	Transactions []Transaction
	Rejects      []Reject
}

// Classify maps an OFX transaction type and signed amount to an action.
// CREDIT and DIRECTDEP are income. DEBIT is an expense unless the amount is
// not negative. Any other type is income when positive and an expense
// otherwise.
func Classify(trnType string, signed decimal.Decimal) Action {
	switch strings.ToUpper(strings.TrimSpace(trnType)) {
	case "CREDIT", "DIRECTDEP":
		return ActionIncome
	case "DEBIT":
		if signed.IsNegative() {
			return ActionExpense
		}
		return ActionIncome
	default:
		if signed.IsPositive() {
			return ActionIncome
		}
		return ActionExpense
	}
}

// Parse reads a whole OFX document.
// Records without TRNAMT or DTPOSTED are skipped. Records whose amount or
// date cannot be read are returned in Rejects.
func Parse(r io.Reader) (*Statement, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}
	if len(raw) > MaxSize {
		return nil, ErrTooLarge
	}

	body, ok := normalize(string(raw))
	if !ok {
		return nil, ErrMalformed
	}

	doc, err := xmlquery.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if xmlquery.FindOne(doc, "//OFX") == nil {
		return nil, ErrMalformed
	}

	stmt := &Statement{
		Currency: text(doc, "//CURDEF"),
		Account:  account(doc),
	}
	if stmt.Currency == "" {
		stmt.Currency = DefaultCurrency
	}

	for _, node := range xmlquery.Find(doc, "//STMTTRN") {
		trn, reject := transaction(node, stmt.Currency)
		switch {
		case reject != nil:
			stmt.Rejects = append(stmt.Rejects, *reject)
		case trn != nil:
			stmt.Transactions = append(stmt.Transactions, *trn)
		}
	}
	return stmt, nil
}

func account(doc *xmlquery.Node) Account {
	if bank := xmlquery.FindOne(doc, "//BANKACCTFROM"); bank != nil {
		return Account{
			Kind:        KindBank,
			AccountID:   text(bank, "ACCTID"),
			BankID:      text(bank, "BANKID"),
			AccountType: text(bank, "ACCTTYPE"),
		}
	}
	if cc := xmlquery.FindOne(doc, "//CCACCTFROM"); cc != nil {
		return Account{Kind: KindCreditCard, AccountID: text(cc, "ACCTID")}
	}
	return Account{}
}

func transaction(node *xmlquery.Node, currency string) (*Transaction, *Reject) {
	fitid := text(node, "FITID")
	rawAmount := text(node, "TRNAMT")
	rawDate := text(node, "DTPOSTED")
	if rawAmount == "" || rawDate == "" {
		return nil, nil
	}

	signed, err := parseAmount(rawAmount)
	if err != nil {
		return nil, &Reject{FITID: fitid, Reason: fmt.Sprintf("Amount %q is not a number", rawAmount)}
	}
	date, err := parseDate(rawDate)
	if err != nil {
		return nil, &Reject{FITID: fitid, Reason: fmt.Sprintf("Date %q is not a valid date", rawDate)}
	}

	description := text(node, "MEMO")
	if description == "" {
		description = text(node, "NAME")
	}

	trnType := text(node, "TRNTYPE")
	return &Transaction{
		FITID:        fitid,
		Type:         trnType,
		Date:         date,
		Amount:       signed.Abs(),
		SignedAmount: signed,
		Currency:     currency,
		Description:  description,
		Action:       Classify(trnType, signed),
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimPrefix(strings.ReplaceAll(raw, ",", "."), "+")
	return decimal.NewFromString(raw)
}

// parseDate reads the YYYYMMDD prefix of an OFX datetime
func parseDate(raw string) (time.Time, error) {
	if len(raw) < 8 {
		return time.Time{}, fmt.Errorf("date too short: %q", raw)
	}
	return time.Parse("20060102", raw[:8])
}

func text(node *xmlquery.Node, expr string) string {
	found := xmlquery.FindOne(node, expr)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(found.InnerText())
}

var leafTag = regexp.MustCompile(`<([A-Za-z0-9.]+)>([^<]*)`)

// normalize turns an SGML statement into well formed XML: the header block
// before the first tag is dropped, unclosed leaf elements are closed and bare
// ampersands are escaped. XML documents pass through unchanged.
func normalize(raw string) (string, bool) {
	start := strings.Index(raw, "<")
	if start < 0 {
		return "", false
	}
	raw = raw[start:]

	var b strings.Builder
	b.Grow(len(raw) + len(raw)/4)
	last := 0
	for _, m := range leafTag.FindAllStringSubmatchIndex(raw, -1) {
		end := m[1]
		b.WriteString(raw[last:end])
		last = end

		tag := raw[m[2]:m[3]]
		value := raw[m[4]:m[5]]
		rest := raw[end:]
		if strings.TrimSpace(value) == "" {
			// an empty leaf is only recognisable when its parent closes next
			if strings.HasPrefix(rest, "</") && !strings.HasPrefix(rest, "</"+tag+">") {
				b.WriteString("</" + tag + ">")
			}
			continue
		}
		if !strings.HasPrefix(rest, "</"+tag+">") {
			b.WriteString("</" + tag + ">")
		}
	}
	b.WriteString(raw[last:])
	return escapeAmpersands(b.String()), true
}

var entity = regexp.MustCompile(`^&(?:[A-Za-z]+|#[0-9]+|#x[0-9A-Fa-f]+);`)

func escapeAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for i := 0; i < len(s); i++ {
		if s[i] == '&' && !entity.MatchString(s[i:]) {
			b.WriteString("&amp;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
