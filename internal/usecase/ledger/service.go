package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/simaogato/bucketbook-backend/internal/domain"
)

const tracerName = "github.com/simaogato/bucketbook-backend/internal/usecase/ledger"

// Result reports the outcome of an entry write. On failure Errors holds the
// messages keyed by field and Err classifies them (ErrValidation or
// ErrNotFound); nothing was written.
type Result struct {
	Success bool
	Entry   *domain.Entry
	Action  domain.Action
	Errors  domain.FieldErrors
	Err     error
}

func rejected(fe domain.FieldErrors) *Result {
	return &Result{Errors: fe, Err: fe}
}

// Draft is an entry whose legs are already resolved. Allocation and import
// build drafts and post them through the same validation as Submit.
type Draft struct {
	AccountID   uuid.UUID
	Date        time.Time
	Currency    string
	Amount      decimal.Decimal
	Description string
	Debit       *domain.Bucket
	Credit      *domain.Bucket
}

// Service validates and persists entries and derives balances from them
type Service struct {
	BucketRepo domain.BucketRepository
	EntryRepo  domain.EntryRepository
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Now        func() time.Time
}

// NewService creates a new ledger Service instance
func NewService(bucketRepo domain.BucketRepository, entryRepo domain.EntryRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		BucketRepo: bucketRepo,
		EntryRepo:  entryRepo,
		Logger:     logger,
		Tracer:     otel.Tracer(tracerName),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithRepositories returns a copy of the engine that reads and writes through
// repos, typically the repositories of an open transaction.
func (s *Service) WithRepositories(repos domain.Repositories) *Service {
	bound := *s
	bound.BucketRepo = repos.Buckets
	bound.EntryRepo = repos.Entries
	return &bound
}

// lookup resolves a raw bucket reference inside the account. A blank,
// malformed or unknown reference yields nil without error.
func (s *Service) lookup(ctx context.Context, accountID uuid.UUID, raw string) (*domain.Bucket, error) {
	id, ok := parseID(raw)
	if !ok {
		return nil, nil
	}
	bucket, err := s.BucketRepo.GetByID(ctx, accountID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return bucket, nil
}

// transform maps a flow of money onto debit and credit legs:
//   - income:   from is credited, to is debited
//   - expense:  from is debited, to is credited
//   - transfer: a real from is credited and to debited; a virtual from is
//     debited and to credited
func transform(action domain.Action, from, to *domain.Bucket) (debit, credit *domain.Bucket) {
	switch action {
	case domain.ActionIncome:
		return to, from
	case domain.ActionExpense:
		return from, to
	default:
		if from.IsVirtual() {
			return from, to
		}
		return to, from
	}
}

// resolveLegs turns the attributes into the entry's two legs. Missing legs
// are reported on fe and returned as nil.
func (s *Service) resolveLegs(ctx context.Context, accountID uuid.UUID, attrs Attributes, fe domain.FieldErrors) (debit, credit *domain.Bucket, err error) {
	if !attrs.Has(KeyAction) || attrs.Get(KeyAction) == "" {
		if debit, err = s.lookup(ctx, accountID, attrs.Get(KeyDebit)); err != nil {
			return nil, nil, err
		}
		if credit, err = s.lookup(ctx, accountID, attrs.Get(KeyCredit)); err != nil {
			return nil, nil, err
		}
		if debit == nil {
			fe.Add(FieldDebitAccount, "must exist")
		}
		if credit == nil {
			fe.Add(FieldCreditAccount, "must exist")
		}
		return debit, credit, nil
	}

	action, ok := domain.ParseAction(attrs.Get(KeyAction))
	if !ok {
		fe.Add(FieldAction, "is not included in the list")
		return nil, nil, nil
	}

	from, err := s.lookup(ctx, accountID, attrs.Get(KeyFrom))
	if err != nil {
		return nil, nil, err
	}
	to, err := s.lookup(ctx, accountID, attrs.Get(KeyTo))
	if err != nil {
		return nil, nil, err
	}
	if from == nil {
		fe.Add(FieldFrom, "must exist")
	}
	if to == nil {
		fe.Add(FieldTo, "must exist")
	}
	if from == nil || to == nil {
		return nil, nil, nil
	}

	debit, credit = transform(action, from, to)
	return debit, credit, nil
}

// validate merges the entry invariants into fe. Leg messages are skipped when
// the legs could not be resolved, since resolution already reported them.
func validate(entry *domain.Entry, debit, credit *domain.Bucket, fe domain.FieldErrors) {
	verr, ok := domain.AsFieldErrors(entry.Validate(debit, credit))
	if !ok {
		return
	}
	unresolved := debit == nil || credit == nil
	for field, messages := range verr {
		if fe.Has(field) {
			continue
		}
		if unresolved && field != FieldAmount && field != "currency" {
			continue
		}
		fe[field] = append(fe[field], messages...)
	}
}

func (s *Service) create(ctx context.Context, entry *domain.Entry, debit, credit *domain.Bucket) (*Result, error) {
	if err := s.EntryRepo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	action := domain.Classify(debit.BucketType, credit.BucketType)
	s.Logger.Debug("entry recorded",
		zap.String("account_id", entry.AccountID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.String("action", string(action)),
		zap.String("amount", entry.Amount.String()),
	)
	return &Result{Success: true, Entry: entry, Action: action}, nil
}

func endSpan(span trace.Span, result *Result, err error) {
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result != nil && !result.Success:
		span.SetAttributes(attribute.Bool("rejected", true))
	}
	span.End()
}

// Submit records one entry from raw attributes
// Logic:
//  1. Amount must be present and greater than 0
//  2. Legs come from (action, from, to) through the transform rule, or from
//     explicit debit and credit ids; both must belong to the account
//  3. Debit and credit must differ
//  4. The entry belongs to the account owning both legs
//
// A rejected submission writes nothing.
func (s *Service) Submit(ctx context.Context, accountID uuid.UUID, attrs Attributes) (result *Result, err error) {
	ctx, span := s.Tracer.Start(ctx, "ledger.Submit", trace.WithAttributes(attribute.String("account_id", accountID.String())))
	defer func() { endSpan(span, result, err) }()

	fe := domain.FieldErrors{}
	entry := &domain.Entry{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      parseAmount(attrs[KeyAmount], fe),
		Date:        parseDate(attrs[KeyDate], fe),
		Currency:    attrs.Get(KeyCurrency),
		Description: attrs.Get(KeyDescription),
	}
	entry.ApplyDefaults(s.Now())

	debit, credit, err := s.resolveLegs(ctx, accountID, attrs, fe)
	if err != nil {
		return nil, err
	}
	entry.Bind(debit, credit)
	validate(entry, debit, credit, fe)

	if len(fe) > 0 {
		return rejected(fe), nil
	}
	return s.create(ctx, entry, debit, credit)
}

// Post records a draft whose legs are already resolved
func (s *Service) Post(ctx context.Context, draft Draft) (result *Result, err error) {
	ctx, span := s.Tracer.Start(ctx, "ledger.Post")
	defer func() { endSpan(span, result, err) }()

	entry := &domain.Entry{
		ID:          uuid.New(),
		AccountID:   draft.AccountID,
		Date:        draft.Date,
		Currency:    draft.Currency,
		Amount:      draft.Amount,
		Description: draft.Description,
	}
	entry.ApplyDefaults(s.Now())
	entry.Bind(draft.Debit, draft.Credit)

	fe := domain.FieldErrors{}
	validate(entry, draft.Debit, draft.Credit, fe)
	if draft.Debit == nil {
		fe.Add(FieldDebitAccount, "must exist")
	}
	if draft.Credit == nil {
		fe.Add(FieldCreditAccount, "must exist")
	}
	if len(fe) > 0 {
		return rejected(fe), nil
	}
	return s.create(ctx, entry, draft.Debit, draft.Credit)
}

// Update applies the provided attributes to an existing entry and re-validates
// every invariant. Keys that are absent keep their stored value.
func (s *Service) Update(ctx context.Context, accountID, entryID uuid.UUID, attrs Attributes) (result *Result, err error) {
	ctx, span := s.Tracer.Start(ctx, "ledger.Update", trace.WithAttributes(attribute.String("entry_id", entryID.String())))
	defer func() { endSpan(span, result, err) }()

	entry, err := s.EntryRepo.GetByID(ctx, accountID, entryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &Result{Err: domain.ErrEntryNotFound}, nil
		}
		return nil, err
	}

	fe := domain.FieldErrors{}
	if attrs.Has(KeyAmount) {
		entry.Amount = parseAmount(attrs[KeyAmount], fe)
	}
	if attrs.Has(KeyDate) {
		if d := parseDate(attrs[KeyDate], fe); !d.IsZero() {
			entry.Date = d
		}
	}
	if attrs.Has(KeyCurrency) {
		entry.Currency = attrs.Get(KeyCurrency)
	}
	if attrs.Has(KeyDescription) {
		entry.Description = attrs.Get(KeyDescription)
	}
	entry.ApplyDefaults(s.Now())

	var debit, credit *domain.Bucket
	if attrs.Has(KeyAction) && attrs.Get(KeyAction) != "" {
		if debit, credit, err = s.resolveLegs(ctx, accountID, attrs, fe); err != nil {
			return nil, err
		}
	} else {
		debitRef, creditRef := entry.DebitBucketID.String(), entry.CreditBucketID.String()
		if attrs.Has(KeyDebit) {
			debitRef = attrs.Get(KeyDebit)
		}
		if attrs.Has(KeyCredit) {
			creditRef = attrs.Get(KeyCredit)
		}
		legs := Attributes{KeyDebit: debitRef, KeyCredit: creditRef}
		if debit, credit, err = s.resolveLegs(ctx, accountID, legs, fe); err != nil {
			return nil, err
		}
	}

	entry.Bind(debit, credit)
	validate(entry, debit, credit, fe)
	if len(fe) > 0 {
		return rejected(fe), nil
	}

	if err := s.EntryRepo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}
	return &Result{Success: true, Entry: entry, Action: domain.Classify(debit.BucketType, credit.BucketType)}, nil
}

// Classify derives the action of an entry from its two legs
func (s *Service) Classify(debit, credit *domain.Bucket) domain.Action {
	return domain.Classify(debit.BucketType, credit.BucketType)
}

// ClassifyEntry loads an entry's legs and classifies it
func (s *Service) ClassifyEntry(ctx context.Context, accountID, entryID uuid.UUID) (domain.Action, error) {
	entry, err := s.EntryRepo.GetByID(ctx, accountID, entryID)
	if err != nil {
		return "", err
	}
	debit, err := s.BucketRepo.GetByID(ctx, accountID, entry.DebitBucketID)
	if err != nil {
		return "", err
	}
	credit, err := s.BucketRepo.GetByID(ctx, accountID, entry.CreditBucketID)
	if err != nil {
		return "", err
	}
	return s.Classify(debit, credit), nil
}

// BalanceOf recomputes a bucket's balance from every entry touching it
func (s *Service) BalanceOf(ctx context.Context, accountID, bucketID uuid.UUID) (decimal.Decimal, error) {
	bucket, err := s.BucketRepo.GetByID(ctx, accountID, bucketID)
	if err != nil {
		return decimal.Zero, err
	}
	totals, err := s.EntryRepo.Totals(ctx, accountID, bucketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum entries: %w", err)
	}
	return bucket.Balance(totals), nil
}

// Balances computes the balance of every bucket of the account
func (s *Service) Balances(ctx context.Context, accountID uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	buckets, err := s.BucketRepo.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	totals, err := s.EntryRepo.TotalsByBucket(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum entries: %w", err)
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(buckets))
	for _, bucket := range buckets {
		balances[bucket.ID] = bucket.Balance(totals[bucket.ID])
	}
	return balances, nil
}
