package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "rulelint.v1.RuleValidator"

// Full method names, as seen by interceptors.
const (
	ValidateMethod      = "/" + ServiceName + "/Validate"
	ValidateBatchMethod = "/" + ServiceName + "/ValidateBatch"
)

// RuleValidatorServer is the server API. Messages are protobuf well-known
// types so clients need no generated code beyond structpb.
type RuleValidatorServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateBatch(context.Context, *structpb.ListValue) (*structpb.Struct, error)
}

// RegisterRuleValidatorServer registers srv on s.
func RegisterRuleValidatorServer(s grpc.ServiceRegistrar, srv RuleValidatorServer) {
	s.RegisterService(&RuleValidatorServiceDesc, srv)
}

// RuleValidatorServiceDesc describes the service for grpc.Server.
var RuleValidatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RuleValidatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Validate", Handler: validateHandler},
		{MethodName: "ValidateBatch", Handler: validateBatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rulelint/v1/validator.proto",
}

func validateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuleValidatorServer).Validate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RuleValidatorServer).Validate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func validateBatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RuleValidatorServer).ValidateBatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ValidateBatchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RuleValidatorServer).ValidateBatch(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RuleValidatorClient calls a remote RuleValidator.
type RuleValidatorClient struct {
	cc grpc.ClientConnInterface
}

// NewRuleValidatorClient wraps a client connection.
func NewRuleValidatorClient(cc grpc.ClientConnInterface) *RuleValidatorClient {
	return &RuleValidatorClient{cc: cc}
}

// Validate checks one rule.
func (c *RuleValidatorClient) Validate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateBatch checks a list of rules.
func (c *RuleValidatorClient) ValidateBatch(ctx context.Context, in *structpb.ListValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ValidateBatchMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
