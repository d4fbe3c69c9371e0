package allocator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
)

const tracerName = "github.com/simaogato/bucketbook-backend/internal/usecase/allocator"

// errRejected aborts the surrounding transaction after an expected failure
// has been recorded on the result.
var errRejected = errors.New("allocation rejected")

// Allocation is one requested transfer to a target bucket
type Allocation struct {
	BucketID string
	Amount   decimal.Decimal
}

// Result reports the outcome of Allocate. On failure no entry exists and Err
// classifies the first problem (ErrIncomeBucketNotFound, ErrInsufficientBalance,
// ErrSpendingBucketNotFound or ErrValidation).
type Result struct {
	Success        bool
	EntriesCreated int
	Entries        []*domain.Entry
	Total          decimal.Decimal
	Errors         []string
	Err            error
}

func failure(cause error, messages ...string) *Result {
	return &Result{Err: cause, Errors: messages}
}

// Plan returns the positive allocations in bucket id order. Blank,
// non-numeric and non-positive amounts are skipped.
func Plan(requested map[string]string) ([]Allocation, decimal.Decimal) {
	keys := make([]string, 0, len(requested))
	for k := range requested {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := decimal.Zero
	var plan []Allocation
	for _, k := range keys {
		amount, err := decimal.NewFromString(strings.TrimSpace(requested[k]))
		if err != nil || !amount.IsPositive() {
			continue
		}
		plan = append(plan, Allocation{BucketID: k, Amount: amount})
		total = total.Add(amount)
	}
	return plan, total
}

// Service moves budget from an income bucket to several target buckets
type Service struct {
	Transactor domain.Transactor
	Ledger     *ledger.Service
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Now        func() time.Time
}

// NewService creates a new allocator Service instance
func NewService(transactor domain.Transactor, engine *ledger.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Transactor: transactor,
		Ledger:     engine,
		Logger:     logger,
		Tracer:     otel.Tracer(tracerName),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Allocate splits the income bucket's balance across the requested buckets
// Logic:
//  1. Resolve the income bucket inside the account and lock it; it must be
//     an INCOME bucket and every target a SPENDING or SAVINGS bucket
//  2. Skip blank or non-positive amounts; nothing left to allocate is a failure
//  3. The income balance must cover the total, otherwise nothing is written
//  4. Post one entry per target: debit income, credit target
//  5. Any unresolved target or rejected entry rolls back every entry
func (s *Service) Allocate(ctx context.Context, accountID, incomeBucketID uuid.UUID, requested map[string]string) (*Result, error) {
	ctx, span := s.Tracer.Start(ctx, "allocator.Allocate", trace.WithAttributes(
		attribute.String("account_id", accountID.String()),
		attribute.String("income_bucket_id", incomeBucketID.String()),
	))
	defer span.End()

	var run *attempt
	err := s.Transactor.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		run = s.allocate(ctx, repos, accountID, incomeBucketID, requested)
		if run.err != nil {
			return run.err
		}
		if !run.Success {
			return errRejected
		}
		return nil
	})
	if err != nil && !errors.Is(err, errRejected) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := run.Result
	if !res.Success {
		span.SetAttributes(attribute.Bool("rejected", true))
		s.Logger.Info("allocation rejected",
			zap.String("account_id", accountID.String()),
			zap.Strings("errors", res.Errors),
		)
		res.Entries, res.EntriesCreated = nil, 0
		return &res, nil
	}

	span.SetAttributes(attribute.Int("entries_created", res.EntriesCreated))
	s.Logger.Info("budget allocated",
		zap.String("account_id", accountID.String()),
		zap.Int("entries_created", res.EntriesCreated),
		zap.String("total", res.Total.String()),
	)
	return &res, nil
}

// attempt is the outcome of one run inside the transaction; err is a storage
// fault that must abort it.
type attempt struct {
	Result
	err error
}

func (s *Service) allocate(ctx context.Context, repos domain.Repositories, accountID, incomeBucketID uuid.UUID, requested map[string]string) *attempt {
	engine := s.Ledger.WithRepositories(repos)

	income, err := repos.Buckets.GetByIDForUpdate(ctx, accountID, incomeBucketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &attempt{Result: *failure(domain.ErrIncomeBucketNotFound, "Income bucket not found")}
		}
		return &attempt{err: err}
	}
	if income.BucketType != domain.BucketTypeIncome {
		return &attempt{Result: *failure(domain.ErrIncomeBucketNotFound, "Income bucket not found")}
	}

	plan, total := Plan(requested)
	if len(plan) == 0 {
		return &attempt{Result: *failure(domain.ErrValidation, "Enter an amount for at least one bucket")}
	}

	balance, err := engine.BalanceOf(ctx, accountID, income.ID)
	if err != nil {
		return &attempt{err: err}
	}
	if balance.LessThan(total) {
		return &attempt{Result: *failure(domain.ErrInsufficientBalance, fmt.Sprintf(
			"Insufficient balance in income bucket. Available: %s, Requested: %s",
			balance.StringFixed(2), total.StringFixed(2),
		))}
	}

	res := Result{Total: total}
	today := s.Now()
	for _, a := range plan {
		target, err := lookup(ctx, repos.Buckets, accountID, a.BucketID)
		if err != nil {
			return &attempt{err: err}
		}
		if target == nil || !spendable(target) {
			res.Errors = append(res.Errors, fmt.Sprintf("Spending bucket %s not found", a.BucketID))
			if res.Err == nil {
				res.Err = domain.ErrSpendingBucketNotFound
			}
			continue
		}

		posted, err := engine.Post(ctx, ledger.Draft{
			AccountID:   accountID,
			Date:        today,
			Currency:    domain.DefaultCurrency,
			Amount:      a.Amount,
			Description: fmt.Sprintf("Budget allocation: %s → %s", income.Name, target.Name),
			Debit:       income,
			Credit:      target,
		})
		if err != nil {
			return &attempt{err: err}
		}
		if !posted.Success {
			for _, msg := range posted.Errors.FullMessages() {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", target.Name, msg))
			}
			if res.Err == nil {
				res.Err = posted.Err
			}
			continue
		}
		res.Entries = append(res.Entries, posted.Entry)
	}

	if len(res.Errors) == 0 {
		res.Success = true
		res.EntriesCreated = len(res.Entries)
	}
	return &attempt{Result: res}
}

// spendable reports whether b can receive an allocation
func spendable(b *domain.Bucket) bool {
	return b.BucketType == domain.BucketTypeSpending || b.BucketType == domain.BucketTypeSavings
}

func lookup(ctx context.Context, buckets domain.BucketRepository, accountID uuid.UUID, raw string) (*domain.Bucket, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, nil
	}
	bucket, err := buckets.GetByID(ctx, accountID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return bucket, nil
}
