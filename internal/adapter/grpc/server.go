package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/usecase/allocator"
	"github.com/simaogato/bucketbook-backend/internal/usecase/dashboard"
	"github.com/simaogato/bucketbook-backend/internal/usecase/importer"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
	"github.com/simaogato/bucketbook-backend/internal/usecase/registry"
)

// Server implements the LedgerService gRPC server
type Server struct {
	Registry  *registry.Service
	Ledger    *ledger.Service
	Allocator *allocator.Service
	Importer  *importer.Service
	Dashboard *dashboard.DashboardService
	Logger    *zap.Logger
}

var _ LedgerServiceServer = (*Server)(nil)

// NewServer creates a new gRPC server instance
func NewServer(
	registryService *registry.Service,
	ledgerService *ledger.Service,
	allocatorService *allocator.Service,
	importerService *importer.Service,
	dashboardService *dashboard.DashboardService,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Registry:  registryService,
		Ledger:    ledgerService,
		Allocator: allocatorService,
		Importer:  importerService,
		Dashboard: dashboardService,
		Logger:    logger,
	}
}

// account returns the caller's account, which must exist
func (s *Server) account(ctx context.Context) (uuid.UUID, error) {
	id, ok := AccountFromContext(ctx)
	if !ok {
		return uuid.Nil, status.Error(codes.InvalidArgument, "missing x-account-id header")
	}
	if _, err := s.Registry.GetAccount(ctx, id); err != nil {
		return uuid.Nil, mapError(err)
	}
	return id, nil
}

func parseID(in *structpb.Struct, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(str(in, key)))
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", key, err)
	}
	return id, nil
}

func bucketResultToMap(result *registry.BucketResult) map[string]any {
	out := map[string]any{
		"success": result.Success,
		"errors":  fieldErrors(result.Errors),
	}
	if result.Bucket != nil {
		out["bucket"] = bucketToMap(result.Bucket)
	}
	return out
}

// CreateAccount handles the CreateAccount RPC
func (s *Server) CreateAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	result, err := s.Registry.CreateAccount(ctx, str(req, "name"))
	if err != nil {
		return nil, mapError(err)
	}

	out := map[string]any{
		"success": result.Success,
		"errors":  fieldErrors(result.Errors),
	}
	if result.Account != nil {
		out["account"] = map[string]any{
			"id":   result.Account.ID.String(),
			"name": result.Account.Name,
		}
	}
	return response(out)
}

// CreateBucket handles the CreateBucket RPC
func (s *Server) CreateBucket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.Registry.CreateBucket(ctx, accountID, registry.BucketInput{
		Name:        str(req, "name"),
		Description: str(req, "description"),
		BucketType:  str(req, "account_type"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return response(bucketResultToMap(result))
}

// UpdateBucket handles the UpdateBucket RPC
func (s *Server) UpdateBucket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}
	bucketID, err := parseID(req, "id")
	if err != nil {
		return nil, err
	}

	result, err := s.Registry.UpdateBucket(ctx, accountID, bucketID, registry.BucketPatch{
		Name:        optional(req, "name"),
		Description: optional(req, "description"),
		BucketType:  optional(req, "account_type"),
	})
	if err != nil {
		return nil, mapError(err)
	}
	if errors.Is(result.Err, domain.ErrNotFound) {
		return nil, mapError(result.Err)
	}
	return response(bucketResultToMap(result))
}

// ListBuckets handles the ListBuckets RPC
// The optional view is one of real, income, spendable or virtual; otherwise
// account_types filters by type and no filter lists every bucket.
func (s *Server) ListBuckets(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}

	var buckets []*domain.Bucket
	switch view := strings.ToLower(str(req, "view")); view {
	case "real":
		buckets, err = s.Registry.RealAccounts(ctx, accountID)
	case "income":
		buckets, err = s.Registry.IncomeBuckets(ctx, accountID)
	case "spendable":
		buckets, err = s.Registry.Spendable(ctx, accountID)
	case "virtual":
		buckets, err = s.Registry.Virtual(ctx, accountID)
	case "":
		var types []domain.BucketType
		for _, raw := range stringList(req, "account_types") {
			t, parseErr := domain.ParseBucketType(raw)
			if parseErr != nil {
				return nil, status.Errorf(codes.InvalidArgument, "invalid account_type %q", raw)
			}
			types = append(types, t)
		}
		buckets, err = s.Registry.ListByType(ctx, accountID, types...)
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown view %q", view)
	}
	if err != nil {
		return nil, mapError(err)
	}

	balances, err := s.Ledger.Balances(ctx, accountID)
	if err != nil {
		return nil, mapError(err)
	}

	list := make([]any, 0, len(buckets))
	for _, bucket := range buckets {
		b := bucketToMap(bucket)
		b["balance"] = balances[bucket.ID].StringFixed(2)
		list = append(list, b)
	}
	return response(map[string]any{"buckets": list})
}

// GetBucket handles the GetBucket RPC
func (s *Server) GetBucket(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}
	bucketID, err := parseID(req, "id")
	if err != nil {
		return nil, err
	}

	bucket, err := s.Registry.GetBucket(ctx, accountID, bucketID)
	if err != nil {
		return nil, mapError(err)
	}
	balance, err := s.Ledger.BalanceOf(ctx, accountID, bucketID)
	if err != nil {
		return nil, mapError(err)
	}

	b := bucketToMap(bucket)
	b["balance"] = balance.StringFixed(2)
	return response(map[string]any{"bucket": b})
}

func attributes(req *structpb.Struct) (ledger.Attributes, error) {
	attrs := ledger.Attributes{}
	for key, value := range req.GetFields() {
		switch key {
		case "id":
			continue
		case "amount":
			amount, err := amountValue(key, value)
			if err != nil {
				return nil, err
			}
			attrs[key] = amount
		default:
			attrs[key] = stringValue(value)
		}
	}
	return attrs, nil
}

// SubmitEntry handles the SubmitEntry RPC
func (s *Server) SubmitEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}

	attrs, err := attributes(req)
	if err != nil {
		return nil, err
	}

	result, err := s.Ledger.Submit(ctx, accountID, attrs)
	if err != nil {
		return nil, mapError(err)
	}
	return response(entryResultToMap(result))
}

// UpdateEntry handles the UpdateEntry RPC
func (s *Server) UpdateEntry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}
	entryID, err := parseID(req, "id")
	if err != nil {
		return nil, err
	}

	attrs, err := attributes(req)
	if err != nil {
		return nil, err
	}

	result, err := s.Ledger.Update(ctx, accountID, entryID, attrs)
	if err != nil {
		return nil, mapError(err)
	}
	if errors.Is(result.Err, domain.ErrNotFound) && result.Entry == nil && len(result.Errors) == 0 {
		return nil, mapError(result.Err)
	}
	return response(entryResultToMap(result))
}

// ListEntries handles the ListEntries RPC
func (s *Server) ListEntries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}

	var filter domain.EntryFilter
	if filter.Limit, err = integer(req, "limit"); err != nil {
		return nil, err
	}
	if filter.Offset, err = integer(req, "offset"); err != nil {
		return nil, err
	}
	if str(req, "bucket_id") != "" {
		bucketID, err := parseID(req, "bucket_id")
		if err != nil {
			return nil, err
		}
		filter.BucketID = &bucketID
	}

	page, err := s.Ledger.ListEntries(ctx, accountID, filter)
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]any, 0, len(page.Entries))
	for _, view := range page.Entries {
		entries = append(entries, entryViewToMap(view))
	}
	return response(map[string]any{
		"entries":     entries,
		"total_count": page.Total,
	})
}

// AllocateBudget handles the AllocateBudget RPC
func (s *Server) AllocateBudget(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}
	incomeID, err := parseID(req, "income_bucket_id")
	if err != nil {
		return nil, err
	}

	allocations, err := amountMap(req, "allocations")
	if err != nil {
		return nil, err
	}

	result, err := s.Allocator.Allocate(ctx, accountID, incomeID, allocations)
	if err != nil {
		return nil, mapError(err)
	}

	entries := make([]any, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, entryToMap(entry))
	}
	return response(map[string]any{
		"success":         result.Success,
		"entries_created": result.EntriesCreated,
		"total":           result.Total.StringFixed(2),
		"entries":         entries,
		"errors":          toList(result.Errors),
	})
}

// ImportStatement handles the ImportStatement RPC
// The statement is sent inline in statement or referenced by source_uri.
func (s *Server) ImportStatement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}

	request := importer.Request{
		AccountID:    accountID,
		RealBucketID: str(req, "real_account_id"),
		SourceURI:    str(req, "source_uri"),
	}
	if body := str(req, "statement"); body != "" {
		request.Statement = strings.NewReader(body)
	}

	result, err := s.Importer.Import(ctx, request)
	if err != nil {
		return nil, mapError(err)
	}
	return response(map[string]any{
		"success":         result.Success,
		"status":          string(result.Status),
		"entries_created": result.EntriesCreated,
		"errors":          toList(result.Errors),
	})
}

// GetOverview handles the GetOverview RPC
func (s *Server) GetOverview(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	accountID, err := s.account(ctx)
	if err != nil {
		return nil, err
	}

	overview, err := s.Dashboard.GetOverview(ctx, accountID)
	if err != nil {
		return nil, mapError(err)
	}
	return response(overviewToMap(overview))
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrConfiguration):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
