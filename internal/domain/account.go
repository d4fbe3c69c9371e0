package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account is the tenant that owns buckets and entries.
type Account struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate ensures the account adheres to domain rules
func (a *Account) Validate() error {
	fe := FieldErrors{}
	if strings.TrimSpace(a.Name) == "" {
		fe.Add("name", "can't be blank")
	}
	return fe.OrNil()
}
