// Package natstransport serves an invoke.Dispatcher over NATS request/reply.
//
// Requests are JSON envelopes published to one subject:
//
//	{"id": "1", "path": "/hello.world", "params": {"name": "planet"}, "timeoutMs": 500}
//
// and every reply carries the dispatch outcome:
//
//	{"id": "1", "ok": true, "path": "/hello.world", "hops": ["/hello.world"], "result": "hello planet"}
//
// Messages go through Dispatcher.Process, so the dispatcher needs a source
// that accepts the envelope:
//
//	d := invoke.New(reg, invoke.WithSources(invoke.JSONSource()))
//	srv := natstransport.NewServer(nc, d, "invoke")
package natstransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/bjaus/invoke"
	"github.com/bjaus/invoke/transport"
)

var envelope = invoke.JSONInspector()

// DefaultTimeout bounds a request that doesn't ask for less.
const DefaultTimeout = 30 * time.Second

// Server subscribes a dispatcher to a NATS subject.
type Server struct {
	conn       *comms.Conn
	dispatcher *invoke.Dispatcher
	subject    string
	queue      string
	timeout    time.Duration
	logger     *slog.Logger

	sub *comms.Subscription
}

// Option configures a Server.
type Option func(*Server)

// WithQueue subscribes as a member of a queue group so replicas share the
// load.
func WithQueue(queue string) Option {
	return func(s *Server) {
		s.queue = queue
	}
}

// WithTimeout sets the per-request timeout. Requests may ask for less with
// timeoutMs, never for more.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithLogger sets the logger for transport failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a Server for subject. Call Start to subscribe.
func NewServer(nc *comms.Conn, d *invoke.Dispatcher, subject string, opts ...Option) *Server {
	s := &Server{
		conn:       nc,
		dispatcher: d,
		subject:    subject,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "natstransport"), slog.String("subject", subject))
	return s
}

// Start subscribes to the subject. ctx is the parent of every request
// context; cancelling it cancels in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.sub != nil {
		return errors.New("natstransport: server already started")
	}

	handler := func(msg *comms.Msg) {
		data, err := json.Marshal(s.Handle(ctx, msg.Data))
		if err != nil {
			s.logger.Error("failed to encode response", slog.Any("error", err))
			return
		}
		if err := msg.Respond(data); err != nil && !errors.Is(err, comms.ErrMsgNoReply) {
			s.logger.Error("failed to respond", slog.Any("error", err))
		}
	}

	var (
		sub *comms.Subscription
		err error
	)
	if s.queue != "" {
		sub, err = s.conn.QueueSubscribe(s.subject, s.queue, handler)
	} else {
		sub, err = s.conn.Subscribe(s.subject, handler)
	}
	if err != nil {
		return fmt.Errorf("natstransport: subscribe %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("subscribed", slog.String("queue", s.queue))
	return nil
}

// Stop drains the subscription, letting in-flight requests finish.
func (s *Server) Stop() error {
	if s.sub == nil {
		return nil
	}
	sub := s.sub
	s.sub = nil
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("natstransport: drain %s: %w", s.subject, err)
	}
	return nil
}

// Handle processes one raw request envelope and builds the reply. The id
// and timeoutMs fields are read here; the dispatcher's sources parse the
// rest.
func (s *Server) Handle(ctx context.Context, data []byte) *transport.Response {
	var id, path string
	timeout := s.timeout
	if view, err := envelope.Inspect(data); err == nil {
		id, _ = view.GetString("id")
		path, _ = view.GetString("path")
		if ms, ok := view.GetInt("timeoutMs"); ok && ms > 0 {
			if d := time.Duration(ms) * time.Millisecond; d < timeout {
				timeout = d
			}
		}
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.dispatcher.Process(reqCtx, data)
	if err == nil && reqCtx.Err() != nil {
		err = reqCtx.Err()
	}
	if err != nil {
		level := slog.LevelDebug
		if invoke.Code(err) == invoke.CodeInvalidRequest {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "request failed",
			slog.String("id", id),
			slog.String("path", path),
			slog.Any("error", err),
		)
	}
	return transport.NewResponse(id, out, err)
}
