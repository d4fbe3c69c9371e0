package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the ledger service
const ServiceName = "bucketbook.v1.LedgerService"

// Method names of the ledger service
const (
	MethodCreateAccount   = "CreateAccount"
	MethodCreateBucket    = "CreateBucket"
	MethodUpdateBucket    = "UpdateBucket"
	MethodListBuckets     = "ListBuckets"
	MethodGetBucket       = "GetBucket"
	MethodSubmitEntry     = "SubmitEntry"
	MethodUpdateEntry     = "UpdateEntry"
	MethodListEntries     = "ListEntries"
	MethodAllocateBudget  = "AllocateBudget"
	MethodImportStatement = "ImportStatement"
	MethodGetOverview     = "GetOverview"
)

// FullMethod returns the path of method as seen by interceptors
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// LedgerServiceServer is the server API for the ledger service. Requests and
// responses are google.protobuf.Struct messages.
type LedgerServiceServer interface {
	CreateAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBucket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateBucket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListBuckets(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBucket(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitEntry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateEntry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListEntries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AllocateBudget(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ImportStatement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOverview(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(LedgerServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// LedgerServiceDesc describes the ledger service for grpc.Server.RegisterService
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateAccount, LedgerServiceServer.CreateAccount),
		unary(MethodCreateBucket, LedgerServiceServer.CreateBucket),
		unary(MethodUpdateBucket, LedgerServiceServer.UpdateBucket),
		unary(MethodListBuckets, LedgerServiceServer.ListBuckets),
		unary(MethodGetBucket, LedgerServiceServer.GetBucket),
		unary(MethodSubmitEntry, LedgerServiceServer.SubmitEntry),
		unary(MethodUpdateEntry, LedgerServiceServer.UpdateEntry),
		unary(MethodListEntries, LedgerServiceServer.ListEntries),
		unary(MethodAllocateBudget, LedgerServiceServer.AllocateBudget),
		unary(MethodImportStatement, LedgerServiceServer.ImportStatement),
		unary(MethodGetOverview, LedgerServiceServer.GetOverview),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bucketbook/v1/ledger.proto",
}

// RegisterLedgerServiceServer registers srv with s
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// LedgerServiceClient calls the ledger service
type LedgerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerServiceClient creates a client on top of cc
func NewLedgerServiceClient(cc grpc.ClientConnInterface) *LedgerServiceClient {
	return &LedgerServiceClient{cc: cc}
}

// Call invokes method with in
func (c *LedgerServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
