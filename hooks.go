package invoke

import (
	"context"
	"time"
)

// OnParseFunc is called after a source parses a raw message. Use it to
// enrich the context with logging fields or trace spans; the returned
// context is used for the rest of the dispatch.
type OnParseFunc func(ctx context.Context, source string, req *Request) context.Context

// OnDispatchFunc is called just before an Invocation is dispatched.
type OnDispatchFunc func(ctx context.Context, inv *Invocation)

// OnSuccessFunc is called after an Invocation's chain returns without error.
type OnSuccessFunc func(ctx context.Context, inv *Invocation, result any, duration time.Duration)

// OnFailureFunc is called after an Invocation's chain returns an error.
type OnFailureFunc func(ctx context.Context, inv *Invocation, err error, duration time.Duration)

// OnChainFunc is called when a result chains from one Invocation into the
// next path.
type OnChainFunc func(ctx context.Context, from *Invocation, next string)

// OnNoSourceFunc is called when no source can parse a raw message.
// Return nil to skip the message, return an error to fail.
type OnNoSourceFunc func(ctx context.Context, raw []byte) error

// OnParseErrorFunc is called when the matched source fails to parse.
// Return nil to skip, return an error to fail.
type OnParseErrorFunc func(ctx context.Context, source string, err error) error

// OnNoHandlerFunc is called when no HandlerConfig is registered for a path.
// Return nil to skip, return an error to fail.
type OnNoHandlerFunc func(ctx context.Context, path string) error

// OnBindErrorFunc is called when arguments can't be bound.
// Return nil to skip, return an error to fail.
type OnBindErrorFunc func(ctx context.Context, path string, err error) error

// hooks holds all configured hook functions.
type hooks struct {
	onParse      []OnParseFunc
	onDispatch   []OnDispatchFunc
	onSuccess    []OnSuccessFunc
	onFailure    []OnFailureFunc
	onChain      []OnChainFunc
	onNoSource   []OnNoSourceFunc
	onParseError []OnParseErrorFunc
	onNoHandler  []OnNoHandlerFunc
	onBindError  []OnBindErrorFunc
}

// WithOnParse adds a hook called after a source parses a raw message.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	invoke.WithOnParse(func(ctx context.Context, source string, req *invoke.Request) context.Context {
//	    return logx.WithCtx(ctx, slog.String("source", source), slog.String("path", req.Path))
//	})
func WithOnParse(fn OnParseFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onParse = append(d.hooks.onParse, fn)
	}
}

// WithOnDispatch adds a hook called before each Invocation is dispatched,
// chained hops included.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onDispatch = append(d.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after each Invocation succeeds.
//
// Example:
//
//	invoke.WithOnSuccess(func(ctx context.Context, inv *invoke.Invocation, _ any, d time.Duration) {
//	    metrics.Timing("invoke.success", d, "path:"+inv.Path())
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onSuccess = append(d.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after an Invocation fails.
//
// Example:
//
//	invoke.WithOnFailure(func(ctx context.Context, inv *invoke.Invocation, err error, d time.Duration) {
//	    logger.ErrorContext(ctx, "invocation failed", "path", inv.Path(), "error", err)
//	})
func WithOnFailure(fn OnFailureFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onFailure = append(d.hooks.onFailure, fn)
	}
}

// WithOnChain adds a hook called when a result chains into another path.
func WithOnChain(fn OnChainFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onChain = append(d.hooks.onChain, fn)
	}
}

// WithOnNoSource adds a hook called when no source matches a raw message.
// Multiple hooks are called in order; first error wins.
func WithOnNoSource(fn OnNoSourceFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onNoSource = append(d.hooks.onNoSource, fn)
	}
}

// WithOnParseError adds a hook called when a source fails to parse.
// Multiple hooks are called in order; first error wins.
func WithOnParseError(fn OnParseErrorFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onParseError = append(d.hooks.onParseError, fn)
	}
}

// WithOnNoHandler adds a hook called when no handler is registered for a
// path. Multiple hooks are called in order; first error wins.
//
// Example:
//
//	invoke.WithOnNoHandler(func(ctx context.Context, path string) error {
//	    logger.WarnContext(ctx, "no handler", "path", path)
//	    return nil // skip
//	})
func WithOnNoHandler(fn OnNoHandlerFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onNoHandler = append(d.hooks.onNoHandler, fn)
	}
}

// WithOnBindError adds a hook called when arguments can't be bound.
// Multiple hooks are called in order; first error wins.
func WithOnBindError(fn OnBindErrorFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onBindError = append(d.hooks.onBindError, fn)
	}
}

func (h *hooks) callOnParse(ctx context.Context, source string, req *Request) context.Context {
	for _, fn := range h.onParse {
		ctx = fn(ctx, source, req)
	}
	return ctx
}

func (h *hooks) callOnDispatch(ctx context.Context, inv *Invocation) {
	for _, fn := range h.onDispatch {
		fn(ctx, inv)
	}
}

func (h *hooks) callOnSuccess(ctx context.Context, inv *Invocation, result any, d time.Duration) {
	for _, fn := range h.onSuccess {
		fn(ctx, inv, result, d)
	}
}

func (h *hooks) callOnFailure(ctx context.Context, inv *Invocation, err error, d time.Duration) {
	for _, fn := range h.onFailure {
		fn(ctx, inv, err, d)
	}
}

func (h *hooks) callOnChain(ctx context.Context, from *Invocation, next string) {
	for _, fn := range h.onChain {
		fn(ctx, from, next)
	}
}
