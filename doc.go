// Package invoke runs requests through interceptor chains to registered
// handlers.
//
// A request is routed by path to a HandlerConfig. The dispatcher binds the
// handler's arguments, wraps them in an Invocation and dispatches it: each
// interceptor in the config runs in order and continues the chain by calling
// Dispatch again, until the handler itself is called, exactly once. A
// handler may answer with a chain result, in which case a new Invocation of
// another path runs, linked back to the one that produced it.
//
// # Quick Start
//
// Define a handler type with methods for each action:
//
//	type Hello struct{}
//
//	func (h *Hello) World(ctx context.Context, name string) (string, error) {
//	    return "hello " + name, nil
//	}
//
// Describe each path, build the registry and a dispatcher:
//
//	world := invoke.MustHandlerConfig("/hello.world",
//	    invoke.MustMethod((*Hello).World),
//	    invoke.WithParams("name"),
//	    invoke.WithInterceptors(invoke.Logging(logger)),
//	)
//
//	d := invoke.New(invoke.MustRegistry(world))
//
//	out, err := d.Dispatch(ctx, &invoke.Request{
//	    Path:    "/hello.world",
//	    Payload: json.RawMessage(`{"name": "planet"}`),
//	})
//
// # Design Philosophy
//
// The package separates concerns into layers:
//
//   - HandlerConfig: immutable description of a path, built once at startup
//   - Invocation: single-use execution state of one request against one config
//   - Interceptor: cross-cutting behavior wrapped around the handler
//   - Dispatcher: binding, invocation and chaining
//
// Transports live outside the package and only build Requests and render
// Outcomes (see transport/httptransport and transport/natstransport).
//
// # Invocations
//
// Dispatch on an Invocation advances a cursor over the interceptor list:
//
//  1. If the handler already ran, fail with *AlreadyExecutedError
//  2. If interceptors remain, call the next one with the Invocation
//  3. Otherwise call the handler and mark the Invocation executed
//
// The cursor only moves forward, so however many times Dispatch is called,
// the handler runs at most once. Results flow back out through every
// interceptor frame in reverse order.
//
// Handlers are called through a Callable. MethodCallable calls method
// expressions by reflection and wraps handler failures in *CallError; the
// Invocation removes that wrapper, so errors.Is and errors.As see the
// handler's own error.
//
// # Interceptors
//
// An Interceptor receives the Invocation and decides what to do with the
// rest of the chain:
//
//	invoke.InterceptorFunc(func(ctx context.Context, inv *invoke.Invocation) (any, error) {
//	    // before
//	    result, err := inv.Dispatch(ctx)
//	    // after
//	    return result, err
//	})
//
// Returning without calling Dispatch short-circuits: the remaining
// interceptors and the handler never run and the Invocation stays
// unexecuted. Guard packages the access-control version of this pattern.
//
// # Chaining
//
// With the default TokenInterpreter, a handler returning "chain:/other"
// makes the dispatcher run /other next. The new Invocation has its own
// cursor and executed flag; Previous points at the producing Invocation,
// whose NextPath records the target.
//
// Chains are bounded: WithMaxChainDepth limits the number of hops
// (DefaultMaxChainDepth by default) and a chain that returns to a path it
// already visited fails with *ChainCycleError.
//
// # Hooks
//
// Hooks provide observability without coupling to specific logging or
// metrics systems:
//
//	d := invoke.New(reg,
//	    invoke.WithOnSuccess(func(ctx context.Context, inv *invoke.Invocation, _ any, d time.Duration) {
//	        metrics.Timing("invoke.success", d, "path:"+inv.Path())
//	    }),
//	    invoke.WithOnChain(func(ctx context.Context, from *invoke.Invocation, next string) {
//	        slog.InfoContext(ctx, "chained", "from", from.Path(), "to", next)
//	    }),
//	)
//
// Error hooks (WithOnNoSource, WithOnParseError, WithOnNoHandler,
// WithOnBindError) return nil to skip the request, reported as
// Outcome.Skipped, or an error to fail it. Without them, those conditions
// are returned as errors.
//
// # Sources
//
// Process accepts raw bytes. Sources are matched with gjson-backed
// discriminators before parsing, and the last successful source is tried
// first on the next message:
//
//	d.AddSource(invoke.JSONSource())
//	out, err := d.Process(ctx, []byte(`{"path": "/hello.world", "params": {"name": "x"}}`))
//
// # Thread Safety
//
// Registry, HandlerConfig and a configured Dispatcher are safe for
// concurrent use. An Invocation belongs to one request and must only be
// driven by one goroutine at a time.
package invoke
