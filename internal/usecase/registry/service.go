package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/platform/lock"
)

// Names of the suspense buckets that catch imported transactions
const (
	UnknownIncomeName  = "Unknown Income"
	UnknownExpenseName = "Unknown Expense"
)

// SystemBucketLabel names the kind of statement that caused the suspense
// buckets to be created. It only changes their description.
type SystemBucketLabel string

const (
	LabelBankAccount SystemBucketLabel = "bank account"
	LabelCreditCard  SystemBucketLabel = "credit card"
)

// SystemBuckets is the pair of suspense buckets of one account
type SystemBuckets struct {
	Income  *domain.Bucket
	Expense *domain.Bucket
}

// BucketInput carries the attributes of a new bucket
type BucketInput struct {
	Name        string
	Description string
	BucketType  string // empty means SPENDING
}

// BucketPatch carries the attributes to change; nil fields are left alone
type BucketPatch struct {
	Name        *string
	Description *string
	BucketType  *string
}

// BucketResult reports the outcome of a bucket write. Err classifies a
// rejected write (ErrValidation or ErrNotFound) and Errors holds the details.
type BucketResult struct {
	Success bool
	Bucket  *domain.Bucket
	Errors  domain.FieldErrors
	Err     error
}

// AccountResult reports the outcome of CreateAccount
type AccountResult struct {
	Success bool
	Account *domain.Account
	Errors  domain.FieldErrors
	Err     error
}

// mergeValidation adds the messages of err to fe, keeping a type error that
// was already reported while parsing.
func mergeValidation(fe domain.FieldErrors, err error) {
	verr, ok := domain.AsFieldErrors(err)
	if !ok {
		return
	}
	for field, messages := range verr {
		if field == "account_type" && fe.Has(field) {
			continue
		}
		fe[field] = append(fe[field], messages...)
	}
}

func rejected(fe domain.FieldErrors) *BucketResult {
	return &BucketResult{Errors: fe, Err: fe}
}

// Service owns buckets and the rules that classify them
type Service struct {
	AccountRepo domain.AccountRepository
	BucketRepo  domain.BucketRepository
	Locker      lock.Locker
	Logger      *zap.Logger
}

// NewService creates a new registry Service instance
func NewService(
	accountRepo domain.AccountRepository,
	bucketRepo domain.BucketRepository,
	locker lock.Locker,
	logger *zap.Logger,
) *Service {
	if locker == nil {
		locker = lock.NewLocal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		AccountRepo: accountRepo,
		BucketRepo:  bucketRepo,
		Locker:      locker,
		Logger:      logger,
	}
}

// CreateAccount registers a new tenant
func (s *Service) CreateAccount(ctx context.Context, name string) (*AccountResult, error) {
	account := &domain.Account{ID: uuid.New(), Name: strings.TrimSpace(name)}
	if err := account.Validate(); err != nil {
		fe, _ := domain.AsFieldErrors(err)
		return &AccountResult{Errors: fe, Err: err}, nil
	}

	if err := s.AccountRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.Logger.Info("account created", zap.String("account_id", account.ID.String()))
	return &AccountResult{Success: true, Account: account}, nil
}

// GetAccount retrieves an account by its ID
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.AccountRepo.GetByID(ctx, id)
}

// ListByType returns the account's buckets whose type is one of types, ordered
// by name. No types means every bucket.
func (s *Service) ListByType(ctx context.Context, accountID uuid.UUID, types ...domain.BucketType) ([]*domain.Bucket, error) {
	return s.BucketRepo.List(ctx, accountID, types...)
}

// RealAccounts lists the buckets holding actual money
func (s *Service) RealAccounts(ctx context.Context, accountID uuid.UUID) ([]*domain.Bucket, error) {
	return s.ListByType(ctx, accountID, domain.BucketTypeReal)
}

// IncomeBuckets lists the buckets allocations are made from
func (s *Service) IncomeBuckets(ctx context.Context, accountID uuid.UUID) ([]*domain.Bucket, error) {
	return s.ListByType(ctx, accountID, domain.BucketTypeIncome)
}

// Spendable lists spending and savings buckets
func (s *Service) Spendable(ctx context.Context, accountID uuid.UUID) ([]*domain.Bucket, error) {
	return s.ListByType(ctx, accountID, domain.BucketTypeSpending, domain.BucketTypeSavings)
}

// Virtual lists every bucket that is not real
func (s *Service) Virtual(ctx context.Context, accountID uuid.UUID) ([]*domain.Bucket, error) {
	return s.ListByType(ctx, accountID, domain.BucketTypeIncome, domain.BucketTypeSpending, domain.BucketTypeSavings)
}

// GetBucket returns one bucket of the account
func (s *Service) GetBucket(ctx context.Context, accountID, id uuid.UUID) (*domain.Bucket, error) {
	return s.BucketRepo.GetByID(ctx, accountID, id)
}

func parseType(raw string, fe domain.FieldErrors) domain.BucketType {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	t, err := domain.ParseBucketType(raw)
	if err != nil {
		fe.Add("account_type", "is not included in the list")
		return domain.BucketType(raw)
	}
	return t
}

// CreateBucket validates and stores a user bucket
// Logic:
//  1. The owning account must exist
//  2. An empty type defaults to SPENDING
//  3. Name is required and the type must be known
func (s *Service) CreateBucket(ctx context.Context, accountID uuid.UUID, input BucketInput) (*BucketResult, error) {
	if _, err := s.AccountRepo.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &BucketResult{Err: domain.ErrAccountNotFound}, nil
		}
		return nil, err
	}

	fe := domain.FieldErrors{}
	bucket := &domain.Bucket{
		ID:          uuid.New(),
		AccountID:   accountID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		BucketType:  parseType(input.BucketType, fe),
	}
	bucket.ApplyDefaults()

	mergeValidation(fe, bucket.Validate())
	if len(fe) > 0 {
		return rejected(fe), nil
	}

	if err := s.BucketRepo.Create(ctx, bucket); err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	s.Logger.Debug("bucket created",
		zap.String("account_id", accountID.String()),
		zap.String("bucket_id", bucket.ID.String()),
		zap.String("bucket_type", string(bucket.BucketType)),
	)
	return &BucketResult{Success: true, Bucket: bucket}, nil
}

// UpdateBucket applies patch to an existing bucket
// Logic:
//  1. System buckets keep their name and type
//  2. A bucket with postings cannot switch between real and virtual, since
//     that would flip the sign of its balance
//  3. The result is validated like a new bucket
func (s *Service) UpdateBucket(ctx context.Context, accountID, id uuid.UUID, patch BucketPatch) (*BucketResult, error) {
	bucket, err := s.BucketRepo.GetByID(ctx, accountID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &BucketResult{Err: domain.ErrBucketNotFound}, nil
		}
		return nil, err
	}

	fe := domain.FieldErrors{}
	previousType := bucket.BucketType

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if bucket.System && name != bucket.Name {
			fe.Add("name", "can't be changed on a system bucket")
		}
		bucket.Name = name
	}
	if patch.Description != nil {
		bucket.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.BucketType != nil {
		bucket.BucketType = parseType(*patch.BucketType, fe)
		if bucket.BucketType == "" {
			bucket.BucketType = previousType
		}
		if bucket.System && bucket.BucketType != previousType {
			fe.Add("account_type", "can't be changed on a system bucket")
		}
	}

	if bucket.BucketType.Valid() && bucket.BucketType.IsVirtual() != previousType.IsVirtual() {
		used, err := s.BucketRepo.HasEntries(ctx, accountID, id)
		if err != nil {
			return nil, err
		}
		if used {
			fe.Add("account_type", "can't switch between real and virtual once entries exist")
		}
	}

	mergeValidation(fe, bucket.Validate())
	if len(fe) > 0 {
		return rejected(fe), nil
	}

	if err := s.BucketRepo.Update(ctx, bucket); err != nil {
		return nil, fmt.Errorf("failed to update bucket: %w", err)
	}
	return &BucketResult{Success: true, Bucket: bucket}, nil
}

func systemBucketDescription(kind string, label SystemBucketLabel) string {
	if label == "" {
		label = LabelBankAccount
	}
	return fmt.Sprintf("Uncategorised %s imported from a %s statement", kind, label)
}

// EnsureSystemBuckets returns the account's suspense buckets, creating them the
// first time. Concurrent callers for the same account get the same two buckets:
// the work runs under a per-account lock and the store enforces one system
// bucket per (account, name).
func (s *Service) EnsureSystemBuckets(ctx context.Context, accountID uuid.UUID, label SystemBucketLabel) (*SystemBuckets, error) {
	var result SystemBuckets

	key := "bucketbook:system-buckets:" + accountID.String()
	err := s.Locker.WithLock(ctx, key, func(ctx context.Context) error {
		income, err := s.BucketRepo.FindOrCreateSystem(ctx, &domain.Bucket{
			ID:          uuid.New(),
			AccountID:   accountID,
			Name:        UnknownIncomeName,
			Description: systemBucketDescription("income", label),
			BucketType:  domain.BucketTypeIncome,
			System:      true,
		})
		if err != nil {
			return fmt.Errorf("failed to ensure %s bucket: %w", UnknownIncomeName, err)
		}

		expense, err := s.BucketRepo.FindOrCreateSystem(ctx, &domain.Bucket{
			ID:          uuid.New(),
			AccountID:   accountID,
			Name:        UnknownExpenseName,
			Description: systemBucketDescription("expenses", label),
			BucketType:  domain.BucketTypeSpending,
			System:      true,
		})
		if err != nil {
			return fmt.Errorf("failed to ensure %s bucket: %w", UnknownExpenseName, err)
		}

		result = SystemBuckets{Income: income, Expense: expense}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}
