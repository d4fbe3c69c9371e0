package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

// accountRepository implements domain.AccountRepository
type accountRepository struct {
	s  *Store
	tx *txState
}

// Create stores a copy of account
func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == uuid.Nil {
		return fmt.Errorf("account ID is required")
	}

	defer r.s.guard(r.tx, true)()

	if _, exists := r.s.accounts[account.ID]; exists {
		return fmt.Errorf("account %s already exists", account.ID)
	}

	now := r.s.now()
	account.CreatedAt, account.UpdatedAt = now, now

	accountCopy := *account
	r.s.accounts[account.ID] = &accountCopy

	if r.tx != nil {
		r.tx.onRollback(func() { delete(r.s.accounts, account.ID) })
	}
	return nil
}

// GetByID returns a copy of the account
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	defer r.s.guard(r.tx, false)()

	account, exists := r.s.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}

	accountCopy := *account
	return &accountCopy, nil
}
