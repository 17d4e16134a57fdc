// Command xdoc-casd serves a CAS, and the document digest RPC, over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"xdao.co/xdoc/storage"
	"xdao.co/xdoc/storage/casconfig"
	"xdao.co/xdoc/storage/casregistry"
	"xdao.co/xdoc/storage/grpccas"

	_ "xdao.co/xdoc/storage/ipfs"
	_ "xdao.co/xdoc/storage/localfs"
	_ "xdao.co/xdoc/storage/memcas"
	_ "xdao.co/xdoc/storage/sqlitecas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("xdoc-casd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "localfs", "CAS backend name")
	configPath := fs.String("cas-config", "", "Multi-backend config file (.json, .toml, .yaml); overrides --backend")
	prefer := fs.String("prefer", "", "Backend id from --cas-config to write to first")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")

	casregistry.RegisterFlags(fs, casregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range casregistry.List(casregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(errOut, "invalid --log-level: %v\n", err)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	cas, closeFn, desc, err := openCAS(*configPath, *backend, *prefer)
	if err != nil {
		logger.Error("open CAS", "error", err)
		return 2
	}
	defer func() {
		if err := closeFn(); err != nil {
			logger.Warn("close CAS", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		logger.Error("listen", "addr", *listen, "error", err)
		return 1
	}

	logger.Info("xdoc-casd listening", "addr", lis.Addr().String(), "backend", desc)
	if err := serve(ctx, lis, cas, logger); err != nil {
		logger.Error("serve", "error", err)
		return 1
	}
	logger.Info("xdoc-casd stopped")
	return 0
}

func openCAS(configPath, backend, prefer string) (storage.CAS, func() error, string, error) {
	var cas storage.CAS
	var closeFn func() error
	var err error
	desc := backend
	if configPath != "" {
		cfg, lerr := casconfig.LoadFile(configPath)
		if lerr != nil {
			return nil, nil, "", lerr
		}
		names := make([]string, 0, len(cfg.Backends))
		for _, b := range cfg.Backends {
			names = append(names, b.Name)
		}
		desc = strings.Join(names, ",")
		cas, closeFn, err = cfg.Open(casregistry.UsageDaemon, prefer)
	} else {
		cas, closeFn, err = casregistry.Open(backend, casregistry.UsageDaemon)
	}
	if err != nil {
		return nil, nil, "", err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return cas, closeFn, desc, nil
}

// serve runs the gRPC server until ctx is done, then stops gracefully.
func serve(ctx context.Context, lis net.Listener, cas storage.CAS, logger *slog.Logger) error {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(logUnary(logger)))
	grpccas.RegisterCASServer(s, &grpccas.Server{CAS: cas})

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		stopped := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			s.Stop()
		}
		if err := <-errc; err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	}
}

func logUnary(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("rpc", "method", info.FullMethod, "duration", time.Since(start), "error", err)
		} else {
			logger.Debug("rpc", "method", info.FullMethod, "duration", time.Since(start))
		}
		return resp, err
	}
}
