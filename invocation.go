package invoke

import (
	"context"

	"github.com/google/uuid"
)

// Invocation is the execution context of one request against one
// HandlerConfig. It walks the interceptor chain one step per Dispatch call
// and calls the handler exactly once at the end of it.
//
// An Invocation belongs to a single request and is not safe for concurrent
// use. It is never reused: a chained hop gets a fresh Invocation whose
// Previous points back at the one that produced it.
type Invocation struct {
	id       string
	path     string
	config   *HandlerConfig
	instance any
	args     []any
	request  *Request

	cursor   int
	calling  bool
	executed bool

	nextPath string
	previous *Invocation
}

// InvocationOption configures an Invocation under construction.
type InvocationOption func(*Invocation)

// WithRequest attaches the inbound request, for interceptors that need it.
func WithRequest(req *Request) InvocationOption {
	return func(inv *Invocation) {
		inv.request = req
	}
}

// WithPrevious links the Invocation to the one whose result caused it.
func WithPrevious(prev *Invocation) InvocationOption {
	return func(inv *Invocation) {
		inv.previous = prev
	}
}

// NewInvocation creates an Invocation of cfg. An empty path defaults to the
// config's path. args are owned by the Invocation from here on.
func NewInvocation(path string, cfg *HandlerConfig, instance any, args []any, opts ...InvocationOption) *Invocation {
	if path == "" {
		path = cfg.Path()
	}
	inv := &Invocation{
		id:       uuid.NewString(),
		path:     path,
		config:   cfg,
		instance: instance,
		args:     args,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Dispatch advances the chain by one step.
//
// While interceptors remain, the next one is called with this Invocation and
// its result is returned as is; the interceptor continues the chain by
// calling Dispatch again, or short-circuits by not doing so. Once every
// interceptor has been entered, Dispatch calls the handler.
//
// Calling Dispatch after the handler ran returns *AlreadyExecutedError.
func (inv *Invocation) Dispatch(ctx context.Context) (any, error) {
	if inv.executed || inv.calling {
		return nil, &AlreadyExecutedError{Path: inv.path}
	}

	if inv.cursor < inv.config.TotalInterceptors() {
		ic := inv.config.interceptor(inv.cursor)
		inv.cursor++
		return ic.Intercept(ctx, inv)
	}

	return inv.call(ctx)
}

// call performs the terminal handler call. executed is set whether the
// handler returns, fails or panics. An *ArgumentError returned directly by
// the callable means the handler was never entered, so the Invocation stays
// dispatchable once its arguments are fixed.
func (inv *Invocation) call(ctx context.Context) (any, error) {
	entered := true
	inv.calling = true
	defer func() {
		inv.calling = false
		inv.executed = entered
	}()

	result, err := inv.config.Handler().Call(ctx, inv.instance, inv.args)
	if err != nil {
		//nolint:errorlint // only the callable's own error, not one the handler wrapped
		if ae, ok := err.(*ArgumentError); ok {
			entered = false
			return nil, ae
		}
		return result, unwrapCall(err)
	}
	return result, nil
}

// unwrapCall strips the call mechanism's own wrapper. Only the outermost
// error belongs to the mechanism; anything the handler wrapped is left alone.
func unwrapCall(err error) error {
	//nolint:errorlint // deliberately not errors.As
	if ce, ok := err.(*CallError); ok && ce.Err != nil {
		return ce.Err
	}
	return err
}

// ID returns the unique identifier of this Invocation.
func (inv *Invocation) ID() string { return inv.id }

// Path returns the path being executed.
func (inv *Invocation) Path() string { return inv.path }

// Config returns the shared HandlerConfig.
func (inv *Invocation) Config() *HandlerConfig { return inv.config }

// Instance returns the handler instance the terminal call is made on.
func (inv *Invocation) Instance() any { return inv.instance }

// Request returns the inbound request, or nil.
func (inv *Invocation) Request() *Request { return inv.request }

// Args returns the resolved arguments. Interceptors may modify the returned
// slice in place or replace it with SetArgs before continuing the chain.
func (inv *Invocation) Args() []any { return inv.args }

// SetArgs replaces the arguments. It fails with ErrArgsFrozen once the
// handler call began.
func (inv *Invocation) SetArgs(args []any) error {
	if inv.calling || inv.executed {
		return ErrArgsFrozen
	}
	inv.args = args
	return nil
}

// Cursor returns the index of the next interceptor to run.
func (inv *Invocation) Cursor() int { return inv.cursor }

// Executed reports whether the handler call has completed.
func (inv *Invocation) Executed() bool { return inv.executed }

// NextPath returns the path chained after this Invocation, if any.
func (inv *Invocation) NextPath() string { return inv.nextPath }

// SetNextPath records the path chained after this Invocation.
func (inv *Invocation) SetNextPath(path string) { inv.nextPath = path }

// Previous returns the Invocation that caused this one, or nil.
func (inv *Invocation) Previous() *Invocation { return inv.previous }

// Depth returns the number of Invocations before this one in its chain.
func (inv *Invocation) Depth() int {
	n := 0
	for p := inv.previous; p != nil; p = p.previous {
		n++
	}
	return n
}

// Chain returns the paths from the first Invocation of the chain up to and
// including this one.
func (inv *Invocation) Chain() []string {
	paths := make([]string, inv.Depth()+1)
	i := len(paths) - 1
	for p := inv; p != nil; p = p.previous {
		paths[i] = p.path
		i--
	}
	return paths
}
