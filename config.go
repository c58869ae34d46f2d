package invoke

import (
	"errors"
	"fmt"
	"reflect"
)

// HandlerConfig describes one routable operation: its path, the ordered
// interceptors that wrap it and the callable at the end of the chain.
//
// A HandlerConfig is immutable once built and is shared by every Invocation
// of its path, so it is safe for concurrent reads without locking.
type HandlerConfig struct {
	path         string
	interceptors []Interceptor
	handler      Callable
	newInstance  func() any
	instanceType reflect.Type
	params       []string
	argTypes     []reflect.Type
}

// ConfigOption configures a HandlerConfig under construction.
type ConfigOption func(*HandlerConfig)

// WithInterceptors appends interceptors in the order they should run.
func WithInterceptors(ics ...Interceptor) ConfigOption {
	return func(c *HandlerConfig) {
		c.interceptors = append(c.interceptors, ics...)
	}
}

// WithInstance sets the factory that builds a fresh handler instance for
// each Invocation.
func WithInstance(fn func() any) ConfigOption {
	return func(c *HandlerConfig) {
		c.newInstance = fn
	}
}

// WithParams names the request fields bound to each handler argument, in
// argument order.
func WithParams(names ...string) ConfigOption {
	return func(c *HandlerConfig) {
		c.params = append(c.params, names...)
	}
}

// NewHandlerConfig builds a HandlerConfig for path.
//
// When h is a *MethodCallable (or anything else reporting Receiver and
// ArgTypes), parameter names are checked against its arity and, absent
// WithInstance, a new receiver is allocated per Invocation.
//
// Example:
//
//	cfg, err := invoke.NewHandlerConfig("/hello.world",
//	    invoke.MustMethod((*Hello).World),
//	    invoke.WithParams("name"),
//	    invoke.WithInterceptors(invoke.Logging(logger)),
//	)
func NewHandlerConfig(path string, h Callable, opts ...ConfigOption) (*HandlerConfig, error) {
	if path == "" {
		return nil, errors.New("invoke: handler config: empty path")
	}
	if h == nil {
		return nil, fmt.Errorf("invoke: handler config %s: nil handler", path)
	}

	c := &HandlerConfig{path: path, handler: h}
	for _, opt := range opts {
		opt(c)
	}

	for i, ic := range c.interceptors {
		if ic == nil {
			return nil, fmt.Errorf("invoke: handler config %s: nil interceptor at %d", path, i)
		}
	}

	if typed, ok := h.(interface{ ArgTypes() []reflect.Type }); ok {
		c.argTypes = typed.ArgTypes()
		if len(c.params) > 0 && len(c.params) != len(c.argTypes) {
			return nil, fmt.Errorf("invoke: handler config %s: %d params for %d arguments",
				path, len(c.params), len(c.argTypes))
		}
	}

	if r, ok := h.(interface{ Receiver() reflect.Type }); ok {
		c.instanceType = r.Receiver()
		if c.newInstance == nil {
			c.newInstance = allocator(c.instanceType)
		}
	}

	return c, nil
}

// MustHandlerConfig is like NewHandlerConfig but panics on error.
func MustHandlerConfig(path string, h Callable, opts ...ConfigOption) *HandlerConfig {
	c, err := NewHandlerConfig(path, h, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func allocator(t reflect.Type) func() any {
	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		return func() any { return reflect.New(elem).Interface() }
	case reflect.Interface:
		return nil
	default:
		return func() any { return reflect.Zero(t).Interface() }
	}
}

// Path returns the identifying path.
func (c *HandlerConfig) Path() string { return c.path }

// Handler returns the terminal callable.
func (c *HandlerConfig) Handler() Callable { return c.handler }

// TotalInterceptors returns the number of interceptors in the chain.
func (c *HandlerConfig) TotalInterceptors() int { return len(c.interceptors) }

// Interceptors returns a copy of the interceptor chain.
func (c *HandlerConfig) Interceptors() []Interceptor {
	out := make([]Interceptor, len(c.interceptors))
	copy(out, c.interceptors)
	return out
}

// Params returns a copy of the parameter names.
func (c *HandlerConfig) Params() []string {
	out := make([]string, len(c.params))
	copy(out, c.params)
	return out
}

// ArgTypes returns a copy of the handler argument types, or nil when the
// callable doesn't report them.
func (c *HandlerConfig) ArgTypes() []reflect.Type {
	if c.argTypes == nil {
		return nil
	}
	out := make([]reflect.Type, len(c.argTypes))
	copy(out, c.argTypes)
	return out
}

// InstanceType returns the handler-instance type, or nil if unknown.
func (c *HandlerConfig) InstanceType() reflect.Type { return c.instanceType }

// NewInstance builds a handler instance, or returns nil when the config has
// no instance factory.
func (c *HandlerConfig) NewInstance() any {
	if c.newInstance == nil {
		return nil
	}
	return c.newInstance()
}

func (c *HandlerConfig) interceptor(i int) Interceptor { return c.interceptors[i] }
