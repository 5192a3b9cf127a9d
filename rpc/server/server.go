package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dShard/lib/bundle"
	"github.com/ValentinKolb/dShard/lib/serializer"
	"github.com/ValentinKolb/dShard/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("admin")

const shutdownTimeout = 5 * time.Second

// AdminServer exposes the admin tasks, health checks and metrics of a bundle over HTTP.
type AdminServer struct {
	config  common.Config
	bundle  *bundle.Bundle
	codec   serializer.ISerializer
	handler http.Handler
}

// NewAdminServer creates the server. It does not listen until Serve or ListenAndServe is called.
//
// Usage:
//
//	b, _ := bundle.New(cfg)
//	s := server.NewAdminServer(cfg, b)
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewAdminServer(config common.Config, b *bundle.Bundle) *AdminServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	s := &AdminServer{
		config: config,
		bundle: b,
		codec:  serializer.NewJSONSerializer(),
	}
	s.handler = s.routes()

	logConfig(log, &config)
	return s
}

func logConfig(l logger.ILogger, config *common.Config) {
	l.Infof("Created admin server")
	l.Infof("%s", config)
}

// Handler returns the http handler serving all admin routes.
func (s *AdminServer) Handler() http.Handler {
	return s.handler
}

func (s *AdminServer) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		if s.config.LogLevel == "debug" {
			h = loggerMiddleware(h)
		}
		mux.HandleFunc(pattern, h)
	}

	handle("POST /tasks/{task}", s.handleTask)
	handle("GET /healthcheck", s.handleHealth)
	handle("GET /shards", s.handleShards)
	handle("GET /metrics", s.handleMetrics)
	return mux
}

// Serve listens on the configured endpoint until SIGINT or SIGTERM.
func (s *AdminServer) Serve() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := net.Listen("tcp", s.config.Endpoint)
	if err != nil {
		return err
	}
	return s.ListenAndServe(ctx, l)
}

// ListenAndServe serves on the listener until ctx is done, then shuts down gracefully.
// The listener is closed when the function returns.
func (s *AdminServer) ListenAndServe(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting admin server on %s", l.Addr())
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infof("Shutting down admin server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
