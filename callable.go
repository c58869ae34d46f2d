package invoke

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// Callable is the terminal operation of a HandlerConfig. Call runs it on the
// handler instance with resolved arguments.
//
// Implementations that wrap handler failures must do so with *CallError so
// Invocation can hand the handler's own error back to the caller.
type Callable interface {
	Call(ctx context.Context, instance any, args []any) (any, error)
}

// CallableFunc is a function adapter for Callable. Use it for handlers that
// don't need reflection:
//
//	invoke.CallableFunc(func(ctx context.Context, _ any, args []any) (any, error) {
//	    return "ok", nil
//	})
type CallableFunc func(ctx context.Context, instance any, args []any) (any, error)

// Call implements the Callable interface.
func (f CallableFunc) Call(ctx context.Context, instance any, args []any) (any, error) {
	return f(ctx, instance, args)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// MethodCallable invokes a method expression through reflection.
type MethodCallable struct {
	fn       reflect.Value
	name     string
	receiver reflect.Type
	withCtx  bool
	in       []reflect.Type
	hasValue bool
	hasErr   bool
}

// Method wraps a method expression such as (*Hello).World. The first
// parameter is the receiver; an optional context.Context may follow; the
// remaining parameters are the handler arguments.
//
// Supported results are (), (R), (error) and (R, error).
//
// Example:
//
//	type Hello struct{}
//
//	func (h *Hello) World(ctx context.Context, name string) (string, error) {
//	    return "ok", nil
//	}
//
//	m, err := invoke.Method((*Hello).World)
func Method(fn any) (*MethodCallable, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return nil, fmt.Errorf("invoke: method: want func, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("invoke: method: variadic %s not supported", t)
	}
	if t.NumIn() == 0 {
		return nil, fmt.Errorf("invoke: method: %s has no receiver", t)
	}

	m := &MethodCallable{
		fn:       v,
		name:     t.String(),
		receiver: t.In(0),
	}

	first := 1
	if t.NumIn() > 1 && t.In(1) == contextType {
		m.withCtx = true
		first = 2
	}
	for i := first; i < t.NumIn(); i++ {
		m.in = append(m.in, t.In(i))
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errorType {
			m.hasErr = true
		} else {
			m.hasValue = true
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("invoke: method: second result of %s must be error", t)
		}
		m.hasValue = true
		m.hasErr = true
	default:
		return nil, fmt.Errorf("invoke: method: %s returns too many values", t)
	}

	return m, nil
}

// MustMethod is like Method but panics on error. Use it when building the
// static routing table at startup.
func MustMethod(fn any) *MethodCallable {
	m, err := Method(fn)
	if err != nil {
		panic(err)
	}
	return m
}

// Receiver returns the handler-instance type.
func (m *MethodCallable) Receiver() reflect.Type { return m.receiver }

// ArgTypes returns the argument types, excluding receiver and context.
func (m *MethodCallable) ArgTypes() []reflect.Type {
	out := make([]reflect.Type, len(m.in))
	copy(out, m.in)
	return out
}

// String returns the method signature.
func (m *MethodCallable) String() string { return m.name }

// Call implements the Callable interface.
func (m *MethodCallable) Call(ctx context.Context, instance any, args []any) (result any, err error) {
	in, err := m.values(ctx, instance, args)
	if err != nil {
		return nil, err
	}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if perr, ok := r.(error); ok {
			err = &CallError{Err: perr}
		} else {
			err = &CallError{Err: &PanicError{Value: r, Stack: debug.Stack()}}
		}
		result = nil
	}()

	out := m.fn.Call(in)

	if m.hasErr {
		if e := out[len(out)-1]; !e.IsNil() {
			err = &CallError{Err: e.Interface().(error)}
		}
	}
	if m.hasValue {
		result = out[0].Interface()
	}
	return result, err
}

// values checks arguments against the signature so reflect never panics on
// a mismatch that isn't the handler's fault.
func (m *MethodCallable) values(ctx context.Context, instance any, args []any) ([]reflect.Value, error) {
	if len(args) != len(m.in) {
		return nil, &ArgumentError{
			Index: -1,
			Want:  fmt.Sprint(len(m.in)),
			Got:   fmt.Sprint(len(args)),
		}
	}

	in := make([]reflect.Value, 0, len(m.in)+2)

	recv, err := assign(instance, m.receiver)
	if err != nil {
		return nil, &ArgumentError{Index: -1, Want: "receiver " + m.receiver.String(), Got: fmt.Sprintf("%T", instance)}
	}
	in = append(in, recv)

	if m.withCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}

	for i, a := range args {
		v, err := assign(a, m.in[i])
		if err != nil {
			return nil, &ArgumentError{Index: i, Want: m.in[i].String(), Got: fmt.Sprintf("%T", a)}
		}
		in = append(in, v)
	}
	return in, nil
}

var errNotAssignable = errors.New("not assignable")

func assign(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, errNotAssignable
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	return reflect.Value{}, errNotAssignable
}
