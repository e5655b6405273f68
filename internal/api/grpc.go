package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runstore"
)

const (
	ServiceName = "saprunner.v1.RunService"

	RunMethod      = "/" + ServiceName + "/Run"
	GetRunMethod   = "/" + ServiceName + "/GetRun"
	ListRunsMethod = "/" + ServiceName + "/ListRuns"

	// RequestIDMetadata carries the correlation id in gRPC metadata.
	RequestIDMetadata = "x-request-id"
	// RunIDMetadata is set as a trailer so failed runs can still be looked up.
	RunIDMetadata = "x-run-id"
)

// RunServiceServer is the server API for saprunner.v1.RunService.
type RunServiceServer interface {
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RunServiceDesc describes saprunner.v1.RunService. Messages are
// google.protobuf.Struct so no generated code is needed.
var RunServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RunServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: unaryHandler(RunMethod, RunServiceServer.Run)},
		{MethodName: "GetRun", Handler: unaryHandler(GetRunMethod, RunServiceServer.GetRun)},
		{MethodName: "ListRuns", Handler: unaryHandler(ListRunsMethod, RunServiceServer.ListRuns)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "saprunner/v1/run.proto",
}

type unaryMethod func(RunServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RunServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RunServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterRunServiceServer registers srv on s.
func RegisterRunServiceServer(s grpc.ServiceRegistrar, srv RunServiceServer) {
	s.RegisterService(&RunServiceDesc, srv)
}

// GRPCServer implements RunServiceServer over a RunService.
type GRPCServer struct {
	svc    RunService
	logger *slog.Logger
}

func NewGRPCServer(svc RunService, logger *slog.Logger) *GRPCServer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &GRPCServer{svc: svc, logger: logger}
}

// Run expects {"start_date", "end_date"} and blocks until the run ends.
func (s *GRPCServer) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	cmd, err := parseCommand(fields["start_date"].GetStringValue(), fields["end_date"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	rec, err := s.svc.Run(ctx, cmd)
	if rec != nil {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(RunIDMetadata, rec.ID))
	}
	if err != nil {
		if classify(err) == classUnexpected {
			s.logger.ErrorContext(ctx, "run failed", "err", err)
		}
		return nil, statusError(err)
	}
	return RunToStruct(rec)
}

// GetRun expects {"id"}.
func (s *GRPCServer) GetRun(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetFields()["id"].GetStringValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	rec, err := s.svc.Get(id)
	if err != nil {
		return nil, statusError(err)
	}
	return RunToStruct(rec)
}

// ListRuns accepts an optional {"limit"} and returns {"runs": [...]}.
func (s *GRPCServer) ListRuns(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit := int(req.GetFields()["limit"].GetNumberValue())
	if limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must be non-negative")
	}
	runs := s.svc.List(limit)
	items := make([]*structpb.Value, 0, len(runs))
	for _, rec := range runs {
		st, err := RunToStruct(rec)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		items = append(items, structpb.NewStructValue(st))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"runs": structpb.NewListValue(&structpb.ListValue{Values: items}),
	}}, nil
}

func statusError(err error) error {
	switch classify(err) {
	case classBadRequest:
		return status.Error(codes.InvalidArgument, err.Error())
	case classBusy:
		return status.Error(codes.ResourceExhausted, err.Error())
	case classUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	case classNotFound:
		return status.Error(codes.NotFound, err.Error())
	case classConfig:
		return status.Error(codes.FailedPrecondition, err.Error())
	case classAutomation:
		return status.Error(codes.Internal, err.Error())
	case classExtraction:
		return status.Error(codes.Aborted, err.Error())
	}
	return status.Error(codes.Unknown, unexpectedMessage)
}

// RequestIDInterceptor honors an inbound x-request-id or mints one, stores it
// in the context for logging and echoes it as a response header.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDMetadata); len(vals) > 0 {
				id = strings.TrimSpace(vals[0])
			}
		}
		if id == "" {
			id = logging.NewRequestID()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDMetadata, id))
		return handler(logging.WithRequestID(ctx, id), req)
	}
}

// RunToStruct converts a run record to its wire form.
func RunToStruct(rec *runstore.Run) (*structpb.Struct, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// StructToRun converts the wire form back to a run record.
func StructToRun(st *structpb.Struct) (*runstore.Run, error) {
	raw, err := protojson.Marshal(st)
	if err != nil {
		return nil, err
	}
	var rec runstore.Run
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RunServiceClient is the client API for saprunner.v1.RunService.
type RunServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRunServiceClient(cc grpc.ClientConnInterface) *RunServiceClient {
	return &RunServiceClient{cc: cc}
}

func (c *RunServiceClient) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, RunMethod, in, opts...)
}

func (c *RunServiceClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetRunMethod, in, opts...)
}

func (c *RunServiceClient) ListRuns(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ListRunsMethod, in, opts...)
}

func (c *RunServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
