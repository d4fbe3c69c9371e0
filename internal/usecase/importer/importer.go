package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/statement/ofx"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
	"github.com/simaogato/bucketbook-backend/internal/usecase/registry"
)

const tracerName = "github.com/simaogato/bucketbook-backend/internal/usecase/importer"

// Configuration problems. Nothing is imported when one of them is reported.
var (
	ErrMissingStatement   = fmt.Errorf("missing statement: %w", domain.ErrConfiguration)
	ErrMissingRealAccount = fmt.Errorf("missing real account: %w", domain.ErrConfiguration)
	ErrInvalidRealAccount = fmt.Errorf("invalid real account: %w", domain.ErrConfiguration)
	ErrMalformedStatement = fmt.Errorf("malformed statement: %w", domain.ErrConfiguration)
)

var messages = map[error]string{
	ErrMissingStatement:   "Please select an OFX file to upload",
	ErrMissingRealAccount: "Please select a real account",
	ErrInvalidRealAccount: "Invalid real account selected",
	ErrMalformedStatement: "The uploaded file is not a valid OFX statement",
}

// Status tells a full import from a partial one and from a rejected request
type Status string

const (
	StatusImported Status = "imported"
	StatusPartial  Status = "partial"
	StatusRejected Status = "rejected"
)

// Source opens statements that live outside the request, such as objects in
// Cloud Storage. A missing object must be reported as domain.ErrNotFound.
type Source interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Request describes one upload. Statement takes precedence over SourceURI.
type Request struct {
	AccountID    uuid.UUID
	RealBucketID string
	Statement    io.Reader
	SourceURI    string
}

// Result reports the outcome of Import. Success is true only for
// StatusImported. For StatusPartial, Err wraps domain.ErrPartialImport and
// Errors has one line per failed transaction. For StatusRejected, Err wraps
// domain.ErrConfiguration and nothing was written.
type Result struct {
	Status         Status
	Success        bool
	EntriesCreated int
	Entries        []*domain.Entry
	Account        ofx.Account
	Errors         []string
	Err            error
}

func rejected(causes ...error) *Result {
	res := &Result{Status: StatusRejected, Err: causes[0]}
	for _, cause := range causes {
		res.Errors = append(res.Errors, messages[cause])
	}
	return res
}

// Service turns statements into ledger entries against a chosen real bucket
type Service struct {
	Registry *registry.Service
	Ledger   *ledger.Service
	Source   Source
	Logger   *zap.Logger
	Tracer   trace.Tracer
}

// NewService creates a new importer Service instance. source may be nil when
// statements are only ever uploaded.
func NewService(reg *registry.Service, engine *ledger.Service, source Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Registry: reg,
		Ledger:   engine,
		Source:   source,
		Logger:   logger,
		Tracer:   otel.Tracer(tracerName),
	}
}

// Import posts every transaction of the statement.
// Logic:
//  1. Check the request: a statement and a real bucket of the account are required
//  2. Parse the statement; an unreadable document rejects the request
//  3. Ensure the account's suspense buckets exist
//  4. Income lines debit the real bucket and credit Unknown Income,
//     expense lines debit Unknown Expense and credit the real bucket
//  5. A failing line is reported and the remaining lines are still posted
func (s *Service) Import(ctx context.Context, req Request) (result *Result, err error) {
	ctx, span := s.Tracer.Start(ctx, "importer.Import", trace.WithAttributes(
		attribute.String("account_id", req.AccountID.String()),
	))
	defer func() {
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result != nil:
			span.SetAttributes(
				attribute.String("status", string(result.Status)),
				attribute.Int("entries_created", result.EntriesCreated),
			)
		}
		span.End()
	}()

	body, closeBody, err := s.open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer closeBody()

	var problems []error
	if body == nil {
		problems = append(problems, ErrMissingStatement)
	}
	selected, err := s.realBucket(ctx, req)
	if err != nil && !errors.Is(err, domain.ErrConfiguration) {
		return nil, err
	}
	if err != nil {
		problems = append(problems, err)
	}
	if len(problems) > 0 {
		return rejected(problems...), nil
	}

	stmt, err := ofx.Parse(body)
	if err != nil {
		if errors.Is(err, ofx.ErrMalformed) {
			s.Logger.Info("statement rejected", zap.String("account_id", req.AccountID.String()), zap.Error(err))
			return rejected(ErrMalformedStatement), nil
		}
		return nil, err
	}

	label := registry.LabelBankAccount
	if stmt.Account.Kind == ofx.KindCreditCard {
		label = registry.LabelCreditCard
	}
	system, err := s.Registry.EnsureSystemBuckets(ctx, req.AccountID, label)
	if err != nil {
		return nil, err
	}

	res := &Result{Account: stmt.Account}
	for _, reject := range stmt.Rejects {
		res.Errors = append(res.Errors, fmt.Sprintf("Transaction %s: %s", reject.FITID, reject.Reason))
	}

	for _, trn := range stmt.Transactions {
		debit, credit := selected, system.Income
		if trn.Action == ofx.ActionExpense {
			debit, credit = system.Expense, selected
		}

		posted, err := s.Ledger.Post(ctx, ledger.Draft{
			AccountID:   req.AccountID,
			Date:        trn.Date,
			Currency:    strings.ToLower(trn.Currency),
			Amount:      trn.Amount,
			Description: trn.Description,
			Debit:       debit,
			Credit:      credit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to post transaction %s: %w", trn.FITID, err)
		}
		if !posted.Success {
			res.Errors = append(res.Errors, fmt.Sprintf("Transaction %s: %s",
				trn.FITID, strings.Join(posted.Errors.FullMessages(), ", ")))
			continue
		}
		res.Entries = append(res.Entries, posted.Entry)
	}
	res.EntriesCreated = len(res.Entries)

	if len(res.Errors) == 0 {
		res.Status, res.Success = StatusImported, true
	} else {
		res.Status = StatusPartial
		res.Err = fmt.Errorf("%d of %d transactions failed: %w",
			len(res.Errors), len(res.Errors)+res.EntriesCreated, domain.ErrPartialImport)
	}

	s.Logger.Info("statement imported",
		zap.String("account_id", req.AccountID.String()),
		zap.String("status", string(res.Status)),
		zap.Int("entries_created", res.EntriesCreated),
		zap.Int("errors", len(res.Errors)),
	)
	return res, nil
}

// open returns the statement body, or nil when the request carries none
func (s *Service) open(ctx context.Context, req Request) (io.Reader, func(), error) {
	noop := func() {}
	if req.Statement != nil {
		return req.Statement, noop, nil
	}
	uri := strings.TrimSpace(req.SourceURI)
	if uri == "" || s.Source == nil {
		return nil, noop, nil
	}

	rc, err := s.Source.Open(ctx, uri)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, noop, nil
		}
		return nil, noop, fmt.Errorf("failed to open statement %s: %w", uri, err)
	}
	return rc, func() {
		if err := rc.Close(); err != nil {
			s.Logger.Warn("failed to close statement", zap.String("uri", uri), zap.Error(err))
		}
	}, nil
}

// realBucket resolves the selected bucket. It must be a REAL bucket of the
// importing account.
func (s *Service) realBucket(ctx context.Context, req Request) (*domain.Bucket, error) {
	raw := strings.TrimSpace(req.RealBucketID)
	if raw == "" {
		return nil, ErrMissingRealAccount
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrInvalidRealAccount
	}

	bucket, err := s.Registry.GetBucket(ctx, req.AccountID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidRealAccount
		}
		return nil, err
	}
	if bucket.BucketType != domain.BucketTypeReal {
		return nil, ErrInvalidRealAccount
	}
	return bucket, nil
}
