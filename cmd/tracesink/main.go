package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	collectortrace "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	_ "google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/keepalive"
)

// Options defines the command line arguments
type Options struct {
	HTTPPort       int           `long:"httpport" description:"port to listen on for OTLP/HTTP (-1 disables it)" default:"4318"`
	GRPCPort       int           `long:"grpcport" description:"port to listen on for OTLP/gRPC (-1 disables it)" default:"4317"`
	ReportInterval time.Duration `long:"reportinterval" description:"how often to log the span rate (0 disables it)" default:"5s"`
}

const (
	DefaultMaxRecvMsgSize        = 15 * 1024 * 1024 // 15 MB
	DefaultMaxConnectionIdle     = 30 * time.Minute
	DefaultMaxConnectionAge      = time.Hour
	DefaultMaxConnectionAgeGrace = 5 * time.Minute
	DefaultKeepAlive             = 2 * time.Minute
	DefaultKeepAliveTimeout      = 20 * time.Second
)

func runHTTPReceiver(ctx context.Context, port int, ts *TraceServer) error {
	mux := http.NewServeMux()
	mux.Handle("/v1/traces", ts)
	mux.HandleFunc("/stats", ts.StatsHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		log.Println("Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}
	}()

	log.Printf("OTLP/HTTP receiver listening on port %d", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http receiver: %w", err)
	}
	return nil
}

func runGRPCReceiver(ctx context.Context, port int, ts *TraceServer) error {
	addr := fmt.Sprintf(":%d", port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(DefaultMaxRecvMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     DefaultMaxConnectionIdle,
			MaxConnectionAge:      DefaultMaxConnectionAge,
			MaxConnectionAgeGrace: DefaultMaxConnectionAgeGrace,
			Time:                  DefaultKeepAlive,
			Timeout:               DefaultKeepAliveTimeout,
		}),
	)
	collectortrace.RegisterTraceServiceServer(srv, ts)

	go func() {
		<-ctx.Done()
		log.Println("Stopping gRPC server...")
		srv.GracefulStop()
	}()

	log.Printf("OTLP/gRPC receiver listening on %s", addr)
	if err := srv.Serve(lis); err != nil {
		return fmt.Errorf("grpc receiver: %w", err)
	}
	return nil
}

func main() {
	var opts Options

	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("Error parsing flags: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ts := NewTraceServer(NewSpanRateTracker(opts.ReportInterval))

	g, gctx := errgroup.WithContext(ctx)
	if opts.HTTPPort > 0 {
		g.Go(func() error { return runHTTPReceiver(gctx, opts.HTTPPort, ts) })
	}
	if opts.GRPCPort > 0 {
		g.Go(func() error { return runGRPCReceiver(gctx, opts.GRPCPort, ts) })
	}
	if err := g.Wait(); err != nil {
		log.Printf("receiver failed: %v", err)
	}

	c := ts.Counts()
	fmt.Printf("\n%d traces, %d spans (%d with errors) received this session\n", c.Traces, c.Spans, c.Errors)
	for _, name := range sortedKeys(c.ByService) {
		fmt.Printf("  service %s: %d spans\n", name, c.ByService[name])
	}
	for _, name := range sortedKeys(c.ByName) {
		fmt.Printf("  %s: %d\n", name, c.ByName[name])
	}
	log.Println("Shutting down gracefully...")
}
