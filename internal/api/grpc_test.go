package api

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/saprunner/internal/runsvc"
	"github.com/antonkrylov/saprunner/internal/sap"
)

func startGRPC(t *testing.T, svc RunService) *RunServiceClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := grpc.NewServer(grpc.UnaryInterceptor(RequestIDInterceptor()))
	RegisterRunServiceServer(s, NewGRPCServer(svc, nil))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewRunServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("struct: %v", err)
	}
	return st
}

func TestGRPCRun(t *testing.T) {
	svc := newFakeService()
	client := startGRPC(t, svc)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, RequestIDMetadata, "grpc-req")

	var header, trailer metadata.MD
	out, err := client.Run(ctx, mustStruct(t, map[string]any{
		"start_date": "2026-01-01",
		"end_date":   "2026-01-31",
	}), grpc.Header(&header), grpc.Trailer(&trailer))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec, err := StructToRun(out)
	if err != nil {
		t.Fatalf("StructToRun: %v", err)
	}
	if rec.ID != "run-1" || rec.NotesCount != 3 || rec.Status != "succeeded" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := header.Get(RequestIDMetadata); len(got) != 1 || got[0] != "grpc-req" {
		t.Fatalf("header = %v", header)
	}
	if got := trailer.Get(RunIDMetadata); len(got) != 1 || got[0] != "run-1" {
		t.Fatalf("trailer = %v", trailer)
	}
	if svc.requestID != "grpc-req" {
		t.Fatalf("request id not propagated: %q", svc.requestID)
	}
}

func TestGRPCStatusCodes(t *testing.T) {
	cases := []struct {
		err  error
		busy bool
		code codes.Code
	}{
		{busy: true, code: codes.ResourceExhausted},
		{err: runsvc.ErrClosed, code: codes.Unavailable},
		{err: &sap.Error{Kind: sap.KindConfig, Msg: "x"}, code: codes.FailedPrecondition},
		{err: &sap.Error{Kind: sap.KindAutomation, Msg: "x"}, code: codes.Internal},
		{err: &sap.Error{Kind: sap.KindExtraction, Msg: "x"}, code: codes.Aborted},
		{err: context.DeadlineExceeded, code: codes.Unknown},
	}
	for _, tc := range cases {
		svc := newFakeService()
		svc.busy = tc.busy
		svc.runErr = tc.err
		client := startGRPC(t, svc)
		_, err := client.Run(context.Background(), mustStruct(t, map[string]any{
			"start_date": "2026-01-01",
			"end_date":   "2026-01-31",
		}))
		if status.Code(err) != tc.code {
			t.Fatalf("err %v: code = %v want %v", tc.err, status.Code(err), tc.code)
		}
	}

	client := startGRPC(t, newFakeService())
	_, err := client.Run(context.Background(), mustStruct(t, map[string]any{"start_date": "x"}))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("bad dates: %v", err)
	}
}

func TestGRPCGetAndList(t *testing.T) {
	client := startGRPC(t, newFakeService())
	ctx := context.Background()

	out, err := client.GetRun(ctx, mustStruct(t, map[string]any{"id": "run-1"}))
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if out.GetFields()["id"].GetStringValue() != "run-1" {
		t.Fatalf("unexpected run %v", out)
	}
	if _, err := client.GetRun(ctx, mustStruct(t, map[string]any{"id": "nope"})); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := client.GetRun(ctx, mustStruct(t, map[string]any{})); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	list, err := client.ListRuns(ctx, mustStruct(t, map[string]any{"limit": 10}))
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if n := len(list.GetFields()["runs"].GetListValue().GetValues()); n != 1 {
		t.Fatalf("expected one run, got %d", n)
	}
}
