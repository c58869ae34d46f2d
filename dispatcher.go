package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// DefaultMaxChainDepth bounds how many chained hops may follow the first
// Invocation of a dispatch.
const DefaultMaxChainDepth = 16

// Dispatcher drives requests through the Registry: it binds arguments,
// builds an Invocation, dispatches it and follows chain results into new
// Invocations.
//
// Usage:
//  1. Build a Registry of HandlerConfigs
//  2. Create a dispatcher with New
//  3. Optionally add sources with AddSource (or AddGroup for custom inspectors)
//  4. Call Dispatch with a Request, or Process with raw bytes
//
// Dispatcher is safe for concurrent use after configuration. Do not call
// AddSource or AddGroup after calling Process.
type Dispatcher struct {
	registry    *Registry
	binder      Binder
	interpreter ResultInterpreter
	maxDepth    int

	defaultInspector Inspector
	defaultSources   []Source
	groups           []group
	hooks            hooks

	// Adaptive ordering: try last successful source first
	lastMatch atomic.Value // stores string
}

// group holds sources that share an inspector.
type group struct {
	inspector Inspector
	sources   []Source
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// New creates a Dispatcher over reg.
//
// By default arguments are bound with JSONBinder, results are interpreted
// with TokenInterpreter and chains are limited to DefaultMaxChainDepth hops.
//
// Example:
//
//	d := invoke.New(reg,
//	    invoke.WithOnFailure(func(ctx context.Context, inv *invoke.Invocation, err error, _ time.Duration) {
//	        slog.ErrorContext(ctx, "invocation failed", "path", inv.Path(), "error", err)
//	    }),
//	)
func New(reg *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:         reg,
		binder:           JSONBinder(),
		interpreter:      TokenInterpreter(),
		maxDepth:         DefaultMaxChainDepth,
		defaultInspector: JSONInspector(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithBinder sets the argument binder.
func WithBinder(b Binder) Option {
	return func(d *Dispatcher) {
		d.binder = b
	}
}

// WithInterpreter sets the result interpreter that decides chaining.
func WithInterpreter(ri ResultInterpreter) Option {
	return func(d *Dispatcher) {
		d.interpreter = ri
	}
}

// WithMaxChainDepth sets how many chained hops may follow the first
// Invocation. Zero disables chaining; a negative value removes the limit.
func WithMaxChainDepth(n int) Option {
	return func(d *Dispatcher) {
		d.maxDepth = n
	}
}

// WithInspector sets the default inspector for sources added with AddSource.
func WithInspector(i Inspector) Option {
	return func(d *Dispatcher) {
		d.defaultInspector = i
	}
}

// WithSources registers sources to the default inspector group, as
// AddSource does.
func WithSources(sources ...Source) Option {
	return func(d *Dispatcher) {
		d.defaultSources = append(d.defaultSources, sources...)
	}
}

// Registry returns the routing table.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// AddSource registers a source to the default inspector group. Sources are
// matched using their Discriminator, then parsed in registration order.
func (d *Dispatcher) AddSource(s Source) {
	d.defaultSources = append(d.defaultSources, s)
}

// AddGroup registers sources with a custom inspector. Groups are checked
// after the default group, in registration order.
func (d *Dispatcher) AddGroup(inspector Inspector, sources ...Source) {
	d.groups = append(d.groups, group{inspector: inspector, sources: sources})
}

// Dispatch executes req and every Invocation its results chain into.
//
// The flow for each hop:
//  1. Look up the HandlerConfig for the path
//  2. Bind arguments and build a handler instance
//  3. Create an Invocation linked to the previous hop
//  4. Dispatch it through its interceptors to the handler
//  5. Ask the interpreter whether the result chains into another path
//
// Errors from interceptors and handlers are returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Outcome, error) {
	if req == nil {
		return nil, errors.New("invoke: nil request")
	}

	var (
		prev *Invocation
		hops []string
	)
	path := req.Path
	for {
		if prev != nil {
			if err := d.checkChain(prev, path); err != nil {
				return nil, err
			}
		}

		cfg, found := d.registry.Lookup(path)
		if !found {
			return d.handleNoHandler(ctx, path, prev)
		}

		args, err := d.binder.Bind(ctx, cfg, req)
		if err != nil {
			return d.handleBindError(ctx, path, err, prev)
		}

		opts := []InvocationOption{WithRequest(req)}
		if prev != nil {
			opts = append(opts, WithPrevious(prev))
		}
		inv := NewInvocation(path, cfg, cfg.NewInstance(), args, opts...)
		hops = append(hops, path)

		d.hooks.callOnDispatch(ctx, inv)

		start := time.Now()
		result, err := inv.Dispatch(ctx)
		duration := time.Since(start)

		if err != nil {
			d.hooks.callOnFailure(ctx, inv, err, duration)
			return nil, err
		}
		d.hooks.callOnSuccess(ctx, inv, result, duration)

		next, chained := d.interpreter.Next(inv, result)
		if !chained {
			return &Outcome{Result: result, Invocation: inv, Hops: hops}, nil
		}

		inv.SetNextPath(next)
		d.hooks.callOnChain(ctx, inv, next)
		prev = inv
		path = next
	}
}

// checkChain enforces the depth limit and rejects re-entering a path that
// is already part of the chain.
func (d *Dispatcher) checkChain(prev *Invocation, next string) error {
	if d.maxDepth >= 0 && prev.Depth()+1 > d.maxDepth {
		return &ChainDepthError{Path: next, Max: d.maxDepth}
	}
	for p := prev; p != nil; p = p.Previous() {
		if p.Path() == next {
			return &ChainCycleError{Path: next, Chain: prev.Chain()}
		}
	}
	return nil
}

// Process parses the raw message with the first matching source and
// dispatches the resulting Request.
//
// Example:
//
//	// In a NATS subscriber
//	sub, err := nc.Subscribe("invoke", func(msg *nats.Msg) {
//	    out, err := d.Process(ctx, msg.Data)
//	    ...
//	})
func (d *Dispatcher) Process(ctx context.Context, raw []byte) (*Outcome, error) {
	source := d.match(raw)
	if source == nil {
		return d.handleNoSource(ctx, raw)
	}

	req, err := source.Parse(raw)
	if err != nil {
		return d.handleParseError(ctx, source, err)
	}

	ctx = d.hooks.callOnParse(ctx, source.Name(), req)
	return d.Dispatch(ctx, req)
}

// viewCache caches parsed views per inspector to avoid re-parsing the same
// raw bytes multiple times during source matching.
type viewCache struct {
	raw   []byte
	views map[Inspector]viewResult
}

type viewResult struct {
	view View
	ok   bool
}

func newViewCache(raw []byte) *viewCache {
	return &viewCache{
		raw:   raw,
		views: make(map[Inspector]viewResult),
	}
}

func (c *viewCache) get(insp Inspector) (View, bool) {
	if result, ok := c.views[insp]; ok {
		return result.view, result.ok
	}

	view, err := insp.Inspect(c.raw)
	if err != nil {
		c.views[insp] = viewResult{ok: false}
		return nil, false
	}

	c.views[insp] = viewResult{view: view, ok: true}
	return view, true
}

// match finds a source whose discriminator matches the raw message, trying
// the last successful source first.
func (d *Dispatcher) match(raw []byte) Source {
	cache := newViewCache(raw)

	if v := d.lastMatch.Load(); v != nil {
		if name, ok := v.(string); ok && name != "" {
			if src := d.find(cache, func(s Source) bool { return s.Name() == name }); src != nil {
				return src
			}
		}
	}

	src := d.find(cache, func(Source) bool { return true })
	if src != nil {
		d.lastMatch.Store(src.Name())
	}
	return src
}

// find returns the first source accepted by filter whose discriminator
// matches, default group first.
func (d *Dispatcher) find(cache *viewCache, filter func(Source) bool) Source {
	try := func(insp Inspector, sources []Source) Source {
		if len(sources) == 0 {
			return nil
		}
		view, ok := cache.get(insp)
		if !ok {
			return nil
		}
		for _, src := range sources {
			if filter(src) && src.Discriminator().Match(view) {
				return src
			}
		}
		return nil
	}

	if src := try(d.defaultInspector, d.defaultSources); src != nil {
		return src
	}
	for _, g := range d.groups {
		if src := try(g.inspector, g.sources); src != nil {
			return src
		}
	}
	return nil
}

func (d *Dispatcher) handleNoSource(ctx context.Context, raw []byte) (*Outcome, error) {
	for _, fn := range d.hooks.onNoSource {
		if err := fn(ctx, raw); err != nil {
			return nil, err
		}
	}
	if len(d.hooks.onNoSource) > 0 {
		return &Outcome{Skipped: true}, nil
	}
	return nil, ErrNoSource
}

func (d *Dispatcher) handleParseError(ctx context.Context, source Source, parseErr error) (*Outcome, error) {
	name := source.Name()
	for _, fn := range d.hooks.onParseError {
		if err := fn(ctx, name, parseErr); err != nil {
			return nil, err
		}
	}
	if len(d.hooks.onParseError) > 0 {
		return &Outcome{Skipped: true}, nil
	}
	return nil, fmt.Errorf("invoke: parse failed for source %s: %w", name, parseErr)
}

func (d *Dispatcher) handleNoHandler(ctx context.Context, path string, prev *Invocation) (*Outcome, error) {
	for _, fn := range d.hooks.onNoHandler {
		if err := fn(ctx, path); err != nil {
			return nil, err
		}
	}
	if len(d.hooks.onNoHandler) > 0 {
		return skipped(prev), nil
	}
	return nil, &NoHandlerError{Path: path}
}

func (d *Dispatcher) handleBindError(ctx context.Context, path string, bindErr error, prev *Invocation) (*Outcome, error) {
	for _, fn := range d.hooks.onBindError {
		if err := fn(ctx, path, bindErr); err != nil {
			return nil, err
		}
	}
	if len(d.hooks.onBindError) > 0 {
		return skipped(prev), nil
	}
	return nil, bindErr
}

// skipped builds the Outcome of a dispatch dropped by a hook; prev is the
// last Invocation that did run, if any.
func skipped(prev *Invocation) *Outcome {
	out := &Outcome{Skipped: true, Invocation: prev}
	if prev != nil {
		out.Hops = prev.Chain()
	}
	return out
}
