package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/antonkrylov/saprunner/internal/api"
	"github.com/antonkrylov/saprunner/internal/app"
	"github.com/antonkrylov/saprunner/internal/config"
	"github.com/antonkrylov/saprunner/internal/logging"
	"github.com/antonkrylov/saprunner/internal/runstore"
	"github.com/antonkrylov/saprunner/internal/runsvc"
)

func main() {
	var (
		configPath      = flag.String("config", config.DefaultConfigPath(), "settings file (SAPRUNNER_CONFIG)")
		httpAddr        = flag.String("http", "", "HTTP listen address (SAPRUNNER_HTTP_ADDR, default :8080)")
		grpcAddr        = flag.String("grpc", "", "gRPC listen address (SAPRUNNER_GRPC_ADDR, default :50051)")
		logJSON         = flag.Bool("log-json", false, "emit logs as JSON")
		logLevel        = flag.String("log-level", "", "log level (LOG_LEVEL)")
		enableJetStream = flag.Bool("enable-jetstream", false, "persist run history to NATS JetStream")
		natsURL         = flag.String("nats-url", "", "NATS connection URL (SAPRUNNER_NATS_URL)")
		natsUser        = flag.String("nats-user", "", "NATS username (SAPRUNNER_NATS_USER)")
		natsPass        = flag.String("nats-pass", "", "NATS password (SAPRUNNER_NATS_PASS)")
		natsEventsPref  = flag.String("nats-events-prefix", "", "NATS subject prefix for run events")
		natsRunsStream  = flag.String("nats-runs-stream", "", "JetStream stream for run snapshots")
	)

	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage:\n  %s [flags]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Resolve(*configPath, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	applyFlag(httpAddr, cfg.Service.HTTPAddr)
	applyFlag(grpcAddr, cfg.Service.GRPCAddr)
	applyFlag(logLevel, cfg.Log.Level)
	applyFlag(natsURL, cfg.Service.NATS.URL)
	applyFlag(natsUser, cfg.Service.NATS.User)
	applyFlag(natsPass, cfg.Service.NATS.Password)
	applyFlag(natsEventsPref, cfg.Service.NATS.EventsPrefix)
	applyFlag(natsRunsStream, cfg.Service.NATS.RunsStream)

	logger, closer, err := logging.New(logging.Options{
		Level: *logLevel,
		JSON:  *logJSON || cfg.Log.JSON,
		File:  cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid settings", "err", err)
		os.Exit(1)
	}
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		logger.Warn("sap credentials missing; runs will fail until they are set", "missing", missing)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeOpts := &runstore.Options{Logger: logger}
	if *enableJetStream || cfg.Service.NATS.URL != "" {
		if *natsURL == "" {
			logger.Error("enable-jetstream requires --nats-url or SAPRUNNER_NATS_URL")
			os.Exit(1)
		}
		storeOpts.JetStream = &runstore.JetStreamOptions{
			URL:          *natsURL,
			User:         *natsUser,
			Password:     *natsPass,
			EventsPrefix: *natsEventsPref,
			RunsStream:   *natsRunsStream,
		}
	}
	st, err := runstore.New(ctx, storeOpts)
	if err != nil {
		logger.Error("store init", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	runService := runsvc.New(st, app.New(cfg, app.Options{Logger: logger}), logger)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(api.RequestIDInterceptor()))
	api.RegisterRunServiceServer(grpcServer, api.NewGRPCServer(runService, logger))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           api.NewHTTPServer(runService, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcLis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		logger.Error("listen grpc", "err", err)
		os.Exit(1)
	}
	httpLis, err := net.Listen("tcp", *httpAddr)
	if err != nil {
		logger.Error("listen http", "err", err)
		os.Exit(1)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logger.Info("shutting down api")
		healthServer.Shutdown()
		runService.Close()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(stopCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		done := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-stopCtx.Done():
			grpcServer.Stop()
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()
	go func() {
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	logger.Info("api ready",
		"http", httpLis.Addr().String(),
		"grpc", grpcLis.Addr().String(),
		"jetstream", storeOpts.JetStream != nil,
		"export_dir", cfg.Export.Dir,
	)
	exitCode := 0
	select {
	case err := <-errCh:
		logger.Error("serve", "err", err)
		exitCode = 1
		stop()
	case <-ctx.Done():
	}
	<-stopped
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// applyFlag fills an unset flag from the resolved settings.
func applyFlag(target *string, value string) {
	if target == nil || *target != "" {
		return
	}
	*target = value
}
