package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy shared by every use case. Expected outcomes are reported as
// data on result structs and classified with these sentinels; only storage
// faults travel through the plain error return.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPartialImport       = errors.New("statement partially imported")
	ErrConfiguration       = errors.New("invalid configuration")

	ErrAccountNotFound        = fmt.Errorf("account %w", ErrNotFound)
	ErrBucketNotFound         = fmt.Errorf("bucket %w", ErrNotFound)
	ErrEntryNotFound          = fmt.Errorf("entry %w", ErrNotFound)
	ErrIncomeBucketNotFound   = fmt.Errorf("income bucket %w", ErrNotFound)
	ErrSpendingBucketNotFound = fmt.Errorf("spending bucket %w", ErrNotFound)
	ErrRealAccountNotFound    = fmt.Errorf("real account %w", ErrNotFound)
)

// FieldErrors collects validation messages keyed by attribute name.
type FieldErrors map[string][]string

// Add appends a message for field.
func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Merge copies every message of other into fe.
func (fe FieldErrors) Merge(other FieldErrors) {
	for field, messages := range other {
		fe[field] = append(fe[field], messages...)
	}
}

// Has reports whether field has at least one message.
func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

func (fe FieldErrors) fields() []string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		if field != "" {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}

// Messages returns "<field> <message>" lines ordered by field name.
func (fe FieldErrors) Messages() []string {
	messages := make([]string, 0, len(fe))
	for _, field := range fe.fields() {
		for _, msg := range fe[field] {
			messages = append(messages, field+" "+msg)
		}
	}
	return messages
}

// FullMessages returns the messages with a humanized field name, such as
// "Credit account must exist".
func (fe FieldErrors) FullMessages() []string {
	messages := make([]string, 0, len(fe))
	for _, field := range fe.fields() {
		name := strings.ReplaceAll(field, "_", " ")
		name = strings.ToUpper(name[:1]) + name[1:] + " "
		if field == "base" {
			name = ""
		}
		for _, msg := range fe[field] {
			messages = append(messages, name+msg)
		}
	}
	return messages
}

func (fe FieldErrors) Error() string {
	return strings.Join(fe.Messages(), ", ")
}

// Is makes FieldErrors match ErrValidation.
func (fe FieldErrors) Is(target error) bool {
	return target == ErrValidation
}

// OrNil returns nil when no message was recorded, so callers never hand out
// a non-nil error interface wrapping an empty map.
func (fe FieldErrors) OrNil() error {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// AsFieldErrors extracts FieldErrors from err, if any.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
