// Package httptransport serves an invoke.Dispatcher over HTTP.
//
// Every registered path becomes a gorilla/mux route. Route variables and
// query parameters feed argument binding alongside the JSON body:
//
//	r := mux.NewRouter()
//	httptransport.NewHandler(d, httptransport.WithRouter(r), httptransport.WithPrefix("/api"))
//
//	// POST /api/hello.world {"name": "planet"}
//	// GET  /api/hello.world?name=planet
//
// Form posts are converted to a JSON payload; dotted field names nest, so
// p.name=ann binds {"p": {"name": "ann"}}.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/bjaus/invoke"
	"github.com/bjaus/invoke/transport"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// DefaultMaxBodyBytes limits request bodies.
const DefaultMaxBodyBytes = 1 << 20

type handler struct {
	dispatcher *invoke.Dispatcher
	router     *mux.Router
	prefix     string
	timeout    time.Duration
	maxBody    int64
	logger     *slog.Logger
}

// Option configures the HTTP handler.
type Option func(*handler)

// WithRouter mounts the routes on an existing router instead of a new one.
func WithRouter(r *mux.Router) Option {
	return func(h *handler) {
		h.router = r
	}
}

// WithPrefix prepends prefix to every route.
func WithPrefix(prefix string) Option {
	return func(h *handler) {
		h.prefix = prefix
	}
}

// WithTimeout bounds each request. Zero means no limit beyond the
// client's own.
func WithTimeout(d time.Duration) Option {
	return func(h *handler) {
		h.timeout = d
	}
}

// WithMaxBodyBytes limits request bodies to n bytes.
func WithMaxBodyBytes(n int64) Option {
	return func(h *handler) {
		h.maxBody = n
	}
}

// WithLogger sets the logger for transport failures.
func WithLogger(l *slog.Logger) Option {
	return func(h *handler) {
		h.logger = l
	}
}

// NewHandler routes every path in the dispatcher's registry and returns the
// router. GET and POST are accepted on each route; unknown routes answer
// with a NOT_FOUND envelope.
func NewHandler(d *invoke.Dispatcher, opts ...Option) http.Handler {
	h := &handler{
		dispatcher: d,
		maxBody:    DefaultMaxBodyBytes,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.router == nil {
		h.router = mux.NewRouter()
	}
	h.logger = h.logger.With(slog.String("component", "httptransport"))

	for _, path := range d.Registry().Paths() {
		h.router.HandleFunc(h.prefix+path, h.serve(path)).Methods(http.MethodGet, http.MethodPost)
	}
	if h.router.NotFoundHandler == nil {
		h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.write(w, http.StatusNotFound, transport.Failure(requestID(r), &invoke.NoHandlerError{Path: r.URL.Path}))
		})
	}
	return h.router
}

// serve returns the handler for one registry path.
func (h *handler) serve(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)

		payload, err := h.body(w, r)
		if err != nil {
			h.write(w, http.StatusBadRequest, transport.InvalidRequest(id, err.Error()))
			return
		}

		ctx := r.Context()
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}

		out, err := h.dispatcher.Dispatch(ctx, &invoke.Request{
			Path:    path,
			Payload: payload,
			Vars:    vars(r),
			Header:  header(r),
		})
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err != nil {
			h.logger.DebugContext(ctx, "request failed",
				slog.String("id", id),
				slog.String("path", path),
				slog.Any("error", err),
			)
			resp := transport.Failure(id, err)
			h.write(w, Status(resp.Error.Code), resp)
			return
		}
		h.write(w, http.StatusOK, transport.NewResponse(id, out, nil))
	}
}

var errInvalidBody = errors.New("request body is not valid JSON")

func (h *handler) body(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	if r.Body == nil || r.Method == http.MethodGet {
		return nil, nil
	}
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/x-www-form-urlencoded" {
		return h.form(w, r)
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, errInvalidBody
	}
	return data, nil
}

// form converts url-encoded fields into a JSON object. Repeated fields
// become arrays. Fields are applied in key order so overlapping names such
// as p and p.name always produce the same payload.
func (h *handler) form(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	if len(r.PostForm) == 0 {
		return nil, nil
	}
	req := &invoke.Request{}
	for _, key := range slices.Sorted(maps.Keys(r.PostForm)) {
		values := r.PostForm[key]
		var value any = values[0]
		if len(values) > 1 {
			value = values
		}
		if err := req.SetParam(key, value); err != nil {
			return nil, fmt.Errorf("form field %q: %w", key, err)
		}
	}
	return req.Payload, nil
}

func (h *handler) write(w http.ResponseWriter, status int, resp *transport.Response) {
	if resp.ID != "" {
		w.Header().Set(RequestIDHeader, resp.ID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// Status maps an error code to an HTTP status.
func Status(code string) int {
	switch code {
	case invoke.CodeNotFound:
		return http.StatusNotFound
	case invoke.CodeInvalidArgument, invoke.CodeInvalidRequest:
		return http.StatusBadRequest
	case invoke.CodeAlreadyExecuted:
		return http.StatusConflict
	case invoke.CodeChainAborted:
		return http.StatusLoopDetected
	case invoke.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return uuid.NewString()
}

// vars merges query parameters with route variables; route variables win.
func vars(r *http.Request) map[string]string {
	out := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	for k, v := range mux.Vars(r) {
		out[k] = v
	}
	return out
}

func header(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
