package client

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/saprunner/internal/api"
	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runstore"
)

type DialSecurityMode int

const (
	DialInsecure DialSecurityMode = iota
	DialTLS
)

// RunClient wraps the generic RunService stub with typed helpers.
type RunClient struct {
	stub *api.RunServiceClient
	conn *grpc.ClientConn
}

func DialRunService(addr string, mode DialSecurityMode, dialOptions ...grpc.DialOption) (*RunClient, error) {
	var creds credentials.TransportCredentials
	switch mode {
	case DialTLS:
		creds = credentials.NewClientTLSFromCert(nil, "")
	default:
		creds = insecure.NewCredentials()
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.WaitForReady(true)),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			// Runs hold a unary call open for minutes; keep pings sparse so
			// servers with a large MinTime do not answer with GOAWAY.
			Time:                5 * time.Minute,
			Timeout:             20 * time.Second,
			PermitWithoutStream: false,
		}),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff: backoff.Config{
				BaseDelay:  250 * time.Millisecond,
				Multiplier: 1.6,
				Jitter:     0.2,
				MaxDelay:   5 * time.Second,
			},
			MinConnectTimeout: 10 * time.Second,
		}),
	}
	opts = append(opts, dialOptions...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &RunClient{stub: api.NewRunServiceClient(conn), conn: conn}, nil
}

func (c *RunClient) Close() error {
	return c.conn.Close()
}

// Run starts a run on the server and waits for its record. The run id of a
// failed run is returned alongside the error when the server reported it.
func (c *RunClient) Run(ctx context.Context, startDate, endDate string) (*runstore.Run, string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"start_date": startDate,
		"end_date":   endDate,
	})
	if err != nil {
		return nil, "", err
	}
	var trailer metadata.MD
	out, err := c.stub.Run(withRequestID(ctx), req, grpc.Trailer(&trailer))
	runID := ""
	if ids := trailer.Get(api.RunIDMetadata); len(ids) > 0 {
		runID = ids[0]
	}
	if err != nil {
		return nil, runID, err
	}
	rec, err := api.StructToRun(out)
	return rec, runID, err
}

func (c *RunClient) Get(ctx context.Context, id string) (*runstore.Run, error) {
	req, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	out, err := c.stub.GetRun(withRequestID(ctx), req)
	if err != nil {
		return nil, err
	}
	return api.StructToRun(out)
}

func (c *RunClient) List(ctx context.Context, limit int) ([]*runstore.Run, error) {
	req, err := structpb.NewStruct(map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out, err := c.stub.ListRuns(withRequestID(ctx), req)
	if err != nil {
		return nil, err
	}
	values := out.GetFields()["runs"].GetListValue().GetValues()
	runs := make([]*runstore.Run, 0, len(values))
	for _, v := range values {
		rec, err := api.StructToRun(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, nil
}

func withRequestID(ctx context.Context) context.Context {
	id := logging.RequestID(ctx)
	if id == "" {
		id = logging.NewRequestID()
	}
	return metadata.AppendToOutgoingContext(ctx, api.RequestIDMetadata, id)
}
