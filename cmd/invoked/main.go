// Command invoked serves the hello handlers over HTTP and, when configured,
// NATS request/reply.
//
// Configuration comes from the environment; see internal/config.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	comms "github.com/nats-io/nats.go"

	"github.com/bjaus/invoke"
	"github.com/bjaus/invoke/internal/config"
	"github.com/bjaus/invoke/internal/hello"
	"github.com/bjaus/invoke/transport/httptransport"
	"github.com/bjaus/invoke/transport/natstransport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("invoked failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.JSONLogs() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// run serves until ctx is cancelled, then shuts down.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	svc, err := newService(cfg, logger)
	if err != nil {
		return err
	}
	if err := svc.start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return svc.shutdown(shutdownCtx)
}

// service wires the dispatcher to its transports.
type service struct {
	cfg        *config.Config
	logger     *slog.Logger
	dispatcher *invoke.Dispatcher

	listener net.Listener
	http     *http.Server
	nc       *comms.Conn
	nats     *natstransport.Server
}

func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	reg, err := hello.Registry(logger)
	if err != nil {
		return nil, err
	}

	d := invoke.New(reg,
		invoke.WithMaxChainDepth(cfg.MaxChainDepth),
		invoke.WithSources(invoke.JSONSource()),
		invoke.WithOnParse(func(ctx context.Context, source string, req *invoke.Request) context.Context {
			logger.DebugContext(ctx, "parsed",
				slog.String("source", source),
				slog.String("path", req.Path),
			)
			return ctx
		}),
		invoke.WithOnChain(func(ctx context.Context, from *invoke.Invocation, next string) {
			logger.DebugContext(ctx, "chained",
				slog.String("invocation", from.ID()),
				slog.String("from", from.Path()),
				slog.String("to", next),
			)
		}),
		invoke.WithOnFailure(func(ctx context.Context, inv *invoke.Invocation, err error, d time.Duration) {
			logger.WarnContext(ctx, "dispatch failed",
				slog.String("invocation", inv.ID()),
				slog.String("path", inv.Path()),
				slog.String("code", invoke.Code(err)),
				slog.Duration("duration", d),
			)
		}),
	)

	return &service{cfg: cfg, logger: logger, dispatcher: d}, nil
}

func (s *service) start(ctx context.Context) error {
	if s.cfg.HTTPAddr != "" {
		if err := s.startHTTP(); err != nil {
			return err
		}
	}
	if s.cfg.NATSURL != "" {
		if err := s.startNATS(ctx); err != nil {
			_ = s.shutdown(context.Background())
			return err
		}
	}
	s.logger.Info("invoked is ready", slog.Any("paths", s.dispatcher.Registry().Paths()))
	return nil
}

func (s *service) startHTTP() error {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	httptransport.NewHandler(s.dispatcher,
		httptransport.WithRouter(r),
		httptransport.WithPrefix(s.cfg.HTTPPrefix),
		httptransport.WithTimeout(s.cfg.RequestTimeout),
		httptransport.WithLogger(s.logger),
	)

	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("invoked: listen %s: %w", s.cfg.HTTPAddr, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("http listening", slog.String("addr", ln.Addr().String()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", slog.Any("error", err))
		}
	}()
	return nil
}

func (s *service) startNATS(ctx context.Context) error {
	nc, err := natstransport.Connect(s.cfg.NATSURL, s.cfg.NATSName, s.logger)
	if err != nil {
		return err
	}
	s.nc = nc

	s.nats = natstransport.NewServer(nc, s.dispatcher, s.cfg.NATSSubject,
		natstransport.WithQueue(s.cfg.NATSQueue),
		natstransport.WithTimeout(s.cfg.RequestTimeout),
		natstransport.WithLogger(s.logger),
	)
	return s.nats.Start(ctx)
}

// addr returns the HTTP listen address, or "" when HTTP is disabled.
func (s *service) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *service) shutdown(ctx context.Context) error {
	var errs []error
	if s.nats != nil {
		errs = append(errs, s.nats.Stop())
	}
	if s.nc != nil {
		errs = append(errs, s.nc.Drain())
	}
	if s.http != nil {
		errs = append(errs, s.http.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invoked: shutdown: %w", err)
	}
	s.logger.Info("shutdown complete")
	return nil
}
