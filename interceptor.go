package invoke

import (
	"context"
	"log/slog"
	"time"
)

// Interceptor wraps the rest of an Invocation's chain.
//
// Intercept receives the Invocation and continues the chain by calling
// inv.Dispatch. Code before that call runs on the way in, code after it on
// the way out, and an interceptor that returns without calling Dispatch
// skips the remaining interceptors and the handler.
//
// An Interceptor must not retain the Invocation after Intercept returns.
//
// Example:
//
//	invoke.InterceptorFunc(func(ctx context.Context, inv *invoke.Invocation) (any, error) {
//	    start := time.Now()
//	    result, err := inv.Dispatch(ctx)
//	    metrics.Timing("handler", time.Since(start), "path:"+inv.Path())
//	    return result, err
//	})
type Interceptor interface {
	Intercept(ctx context.Context, inv *Invocation) (any, error)
}

// InterceptorFunc is a function adapter for Interceptor.
type InterceptorFunc func(ctx context.Context, inv *Invocation) (any, error)

// Intercept implements the Interceptor interface.
func (f InterceptorFunc) Intercept(ctx context.Context, inv *Invocation) (any, error) {
	return f(ctx, inv)
}

// Logging returns an Interceptor that logs entry into and exit from the rest
// of the chain. A nil logger uses slog.Default.
func Logging(logger *slog.Logger) Interceptor {
	return InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l = l.With(
			slog.String("invocation", inv.ID()),
			slog.String("path", inv.Path()),
		)
		if prev := inv.Previous(); prev != nil {
			l = l.With(slog.String("previous", prev.ID()))
		}

		l.DebugContext(ctx, "invocation started", slog.Int("cursor", inv.Cursor()))

		start := time.Now()
		result, err := inv.Dispatch(ctx)
		d := time.Since(start)

		if err != nil {
			l.ErrorContext(ctx, "invocation failed",
				slog.Any("error", err),
				slog.Bool("executed", inv.Executed()),
				slog.Duration("duration", d),
			)
			return result, err
		}
		l.InfoContext(ctx, "invocation completed",
			slog.Bool("executed", inv.Executed()),
			slog.Duration("duration", d),
		)
		return result, nil
	})
}

// Guard returns an Interceptor that continues the chain only when allow
// reports true. Otherwise it returns denied without running the handler.
//
// Example:
//
//	invoke.Guard(func(ctx context.Context, inv *invoke.Invocation) bool {
//	    return inv.Request().Header["Authorization"] != ""
//	}, "denied")
func Guard(allow func(ctx context.Context, inv *Invocation) bool, denied any) Interceptor {
	return InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
		if !allow(ctx, inv) {
			return denied, nil
		}
		return inv.Dispatch(ctx)
	})
}

// RewriteArgs returns an Interceptor that replaces the arguments with the
// result of fn before continuing the chain.
func RewriteArgs(fn func(ctx context.Context, args []any) ([]any, error)) Interceptor {
	return InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
		args, err := fn(ctx, inv.Args())
		if err != nil {
			return nil, err
		}
		if err := inv.SetArgs(args); err != nil {
			return nil, err
		}
		return inv.Dispatch(ctx)
	})
}
