package grpc

import (
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/bucketbook-backend/internal/domain"
	"github.com/simaogato/bucketbook-backend/internal/usecase/dashboard"
	"github.com/simaogato/bucketbook-backend/internal/usecase/ledger"
)

// stringValue renders a request field as text. Numbers keep their shortest
// decimal form, so a limit of 2 reads as "2".
func stringValue(v *structpb.Value) string {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64)
	case *structpb.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}

// amountValue renders an amount. Amounts travel as strings since a JSON
// number is a float64 and loses digits past fifteen or so.
func amountValue(key string, v *structpb.Value) (string, error) {
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return "", status.Errorf(codes.InvalidArgument, "%s must be sent as a decimal string", key)
	}
	return stringValue(v), nil
}

// field returns the text of key and whether it was sent
func field(in *structpb.Struct, key string) (string, bool) {
	v, ok := in.GetFields()[key]
	if !ok {
		return "", false
	}
	return stringValue(v), true
}

func str(in *structpb.Struct, key string) string {
	s, _ := field(in, key)
	return s
}

func optional(in *structpb.Struct, key string) *string {
	if s, ok := field(in, key); ok {
		return &s
	}
	return nil
}

func integer(in *structpb.Struct, key string) (int, error) {
	s, ok := field(in, key)
	if !ok || s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a non-negative integer", key)
	}
	return n, nil
}

func stringList(in *structpb.Struct, key string) []string {
	list := in.GetFields()[key].GetListValue()
	out := make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, stringValue(v))
	}
	return out
}

// amountMap reads a map of bucket ids to amounts
func amountMap(in *structpb.Struct, key string) (map[string]string, error) {
	nested := in.GetFields()[key].GetStructValue()
	out := make(map[string]string, len(nested.GetFields()))
	for k, v := range nested.GetFields() {
		amount, err := amountValue(key+"."+k, v)
		if err != nil {
			return nil, err
		}
		out[k] = amount
	}
	return out, nil
}

func toList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func fieldErrors(fe domain.FieldErrors) map[string]any {
	out := make(map[string]any, len(fe))
	for name, messages := range fe {
		out[name] = toList(messages)
	}
	return out
}

func bucketToMap(bucket *domain.Bucket) map[string]any {
	return map[string]any{
		"id":           bucket.ID.String(),
		"name":         bucket.Name,
		"description":  bucket.Description,
		"account_type": string(bucket.BucketType),
		"system":       bucket.System,
		"virtual":      bucket.IsVirtual(),
		"created_at":   bucket.CreatedAt.Format(time.RFC3339),
		"updated_at":   bucket.UpdatedAt.Format(time.RFC3339),
	}
}

func entryToMap(entry *domain.Entry) map[string]any {
	return map[string]any{
		"id":                entry.ID.String(),
		"date":              entry.Date.Format(time.RFC3339),
		"currency":          entry.Currency,
		"amount":            entry.Amount.StringFixed(2),
		"description":       entry.Description,
		"debit_account_id":  entry.DebitBucketID.String(),
		"credit_account_id": entry.CreditBucketID.String(),
		"created_at":        entry.CreatedAt.Format(time.RFC3339),
	}
}

func entryViewToMap(view ledger.EntryView) map[string]any {
	m := entryToMap(view.Entry)
	m["action"] = string(view.Action)
	m["debit_account"] = view.Debit.Name
	m["credit_account"] = view.Credit.Name
	m["from_account"] = view.From.Name
	m["to_account"] = view.To.Name
	return m
}

func entryResultToMap(result *ledger.Result) map[string]any {
	out := map[string]any{
		"success": result.Success,
		"errors":  fieldErrors(result.Errors),
	}
	if result.Entry != nil {
		out["entry"] = entryToMap(result.Entry)
		out["action"] = string(result.Action)
	}
	return out
}

func overviewToMap(o *dashboard.Overview) map[string]any {
	buckets := make([]any, 0, len(o.Buckets))
	for _, line := range o.Buckets {
		b := bucketToMap(line.Bucket)
		b["balance"] = line.Balance.StringFixed(2)
		buckets = append(buckets, b)
	}
	return map[string]any{
		"cash":      o.Cash.StringFixed(2),
		"income":    o.Income.StringFixed(2),
		"spendable": o.Spendable.StringFixed(2),
		"budgeted":  o.Budgeted.StringFixed(2),
		"balanced":  o.Balanced,
		"buckets":   buckets,
	}
}

// response builds the reply message; a value structpb cannot hold is a bug
func response(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}
