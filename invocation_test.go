package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter struct {
	calls int
	err   error
}

func (g *greeter) Greet(_ context.Context, name string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return "hello " + name, nil
}

func (g *greeter) Explode(name string) string {
	g.calls++
	panic(name)
}

var errBoom = errors.New("boom")

func (g *greeter) ExplodeErr() string {
	g.calls++
	panic(errBoom)
}

type codedError struct{ code string }

func (e *codedError) Error() string { return "coded " + e.code }
func (e *codedError) Code() string  { return e.code }

// trace records entry and exit of interceptors and the handler.
type trace struct {
	events []string
}

func (tr *trace) interceptor(name string) Interceptor {
	return InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
		tr.events = append(tr.events, fmt.Sprintf("%s:pre cursor=%d", name, inv.Cursor()))
		result, err := inv.Dispatch(ctx)
		tr.events = append(tr.events, fmt.Sprintf("%s:post cursor=%d result=%v", name, inv.Cursor(), result))
		return result, err
	})
}

func (tr *trace) handler(result any) Callable {
	return CallableFunc(func(context.Context, any, []any) (any, error) {
		tr.events = append(tr.events, "H")
		return result, nil
	})
}

func TestInvocation_Dispatch(t *testing.T) {
	t.Run("runs interceptors in order around the handler", func(t *testing.T) {
		tr := &trace{}
		cfg := MustHandlerConfig("/ok", tr.handler("ok"),
			WithInterceptors(tr.interceptor("A"), tr.interceptor("B")),
		)
		inv := NewInvocation("", cfg, nil, nil)

		result, err := inv.Dispatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "ok", result)
		assert.True(t, inv.Executed())
		assert.Equal(t, []string{
			"A:pre cursor=1",
			"B:pre cursor=2",
			"H",
			"B:post cursor=2 result=ok",
			"A:post cursor=2 result=ok",
		}, tr.events)
	})

	t.Run("calls the handler exactly once for any chain length", func(t *testing.T) {
		for _, n := range []int{0, 1, 3, 8} {
			t.Run(fmt.Sprint(n), func(t *testing.T) {
				var forwarded []int
				ics := make([]Interceptor, n)
				for i := range ics {
					ics[i] = InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
						forwarded = append(forwarded, i)
						return inv.Dispatch(ctx)
					})
				}
				g := &greeter{}
				cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet),
					WithParams("name"), WithInterceptors(ics...))
				inv := NewInvocation("", cfg, g, []any{"planet"})

				result, err := inv.Dispatch(context.Background())

				require.NoError(t, err)
				assert.Equal(t, "hello planet", result)
				assert.Equal(t, 1, g.calls)
				assert.Len(t, forwarded, n)
				for i, got := range forwarded {
					assert.Equal(t, i, got, "interceptors run in registration order")
				}
				assert.Equal(t, n, inv.Cursor())
			})
		}
	})

	t.Run("fails when dispatched again after execution", func(t *testing.T) {
		for _, n := range []int{0, 2} {
			ics := make([]Interceptor, n)
			for i := range ics {
				ics[i] = InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
					return inv.Dispatch(ctx)
				})
			}
			g := &greeter{}
			cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet),
				WithParams("name"), WithInterceptors(ics...))
			inv := NewInvocation("", cfg, g, []any{"x"})

			_, err := inv.Dispatch(context.Background())
			require.NoError(t, err)

			_, err = inv.Dispatch(context.Background())
			require.ErrorIs(t, err, ErrAlreadyExecuted)

			var aee *AlreadyExecutedError
			require.ErrorAs(t, err, &aee)
			assert.Equal(t, "/greet", aee.Path)
			assert.Equal(t, 1, g.calls)
		}
	})

	t.Run("interceptor dispatching twice cannot run the handler twice", func(t *testing.T) {
		var second error
		twice := InterceptorFunc(func(ctx context.Context, inv *Invocation) (any, error) {
			result, err := inv.Dispatch(ctx)
			_, second = inv.Dispatch(ctx)
			return result, err
		})
		g := &greeter{}
		cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet),
			WithParams("name"), WithInterceptors(twice))
		inv := NewInvocation("", cfg, g, []any{"x"})

		result, err := inv.Dispatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "hello x", result)
		assert.ErrorIs(t, second, ErrAlreadyExecuted)
		assert.Equal(t, 1, g.calls)
	})

	t.Run("handler re-entering its own invocation fails", func(t *testing.T) {
		var inv *Invocation
		var inner error
		h := CallableFunc(func(ctx context.Context, _ any, _ []any) (any, error) {
			_, inner = inv.Dispatch(ctx)
			return "done", nil
		})
		inv = NewInvocation("/reenter", MustHandlerConfig("/reenter", h), nil, nil)

		result, err := inv.Dispatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "done", result)
		assert.ErrorIs(t, inner, ErrAlreadyExecuted)
	})

	t.Run("short-circuit skips the handler", func(t *testing.T) {
		tr := &trace{}
		deny := InterceptorFunc(func(context.Context, *Invocation) (any, error) {
			return "denied", nil
		})
		cfg := MustHandlerConfig("/secret", tr.handler("ok"),
			WithInterceptors(deny, tr.interceptor("B")))
		inv := NewInvocation("", cfg, nil, nil)

		result, err := inv.Dispatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "denied", result)
		assert.False(t, inv.Executed())
		assert.Empty(t, tr.events)
		assert.Equal(t, 1, inv.Cursor())
	})

	t.Run("interceptor error propagates unchanged", func(t *testing.T) {
		errAuth := errors.New("unauthorized")
		tr := &trace{}
		fail := InterceptorFunc(func(context.Context, *Invocation) (any, error) {
			return nil, errAuth
		})
		cfg := MustHandlerConfig("/secret", tr.handler("ok"),
			WithInterceptors(tr.interceptor("A"), fail))
		inv := NewInvocation("", cfg, nil, nil)

		_, err := inv.Dispatch(context.Background())

		assert.Same(t, errAuth, err)
		assert.False(t, inv.Executed())
		assert.NotContains(t, tr.events, "H")
	})
}

func TestInvocation_HandlerFailure(t *testing.T) {
	t.Run("returned error keeps its identity", func(t *testing.T) {
		g := &greeter{err: errBoom}
		cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet), WithParams("name"))
		inv := NewInvocation("", cfg, g, []any{"x"})

		_, err := inv.Dispatch(context.Background())

		assert.Same(t, errBoom, err)
		assert.True(t, inv.Executed())

		var ce *CallError
		assert.False(t, errors.As(err, &ce), "call wrapper must not leak")
	})

	t.Run("typed error is preserved", func(t *testing.T) {
		g := &greeter{err: &codedError{code: "TEAPOT"}}
		cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet), WithParams("name"))
		inv := NewInvocation("", cfg, g, []any{"x"})

		_, err := inv.Dispatch(context.Background())

		var coded *codedError
		require.ErrorAs(t, err, &coded)
		assert.Equal(t, "TEAPOT", Code(err))
	})

	t.Run("panic with an error surfaces that error", func(t *testing.T) {
		g := &greeter{}
		inv := NewInvocation("", MustHandlerConfig("/explode", MustMethod((*greeter).ExplodeErr)), g, nil)

		_, err := inv.Dispatch(context.Background())

		assert.Same(t, errBoom, err)
		assert.True(t, inv.Executed())
	})

	t.Run("panic with a value becomes PanicError", func(t *testing.T) {
		g := &greeter{}
		cfg := MustHandlerConfig("/explode", MustMethod((*greeter).Explode), WithParams("name"))
		inv := NewInvocation("", cfg, g, []any{"kaboom"})

		_, err := inv.Dispatch(context.Background())

		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "kaboom", pe.Value)
		assert.NotEmpty(t, pe.Stack)
		assert.True(t, inv.Executed())
	})

	t.Run("panic escaping a custom callable still marks executed", func(t *testing.T) {
		h := CallableFunc(func(context.Context, any, []any) (any, error) {
			panic("raw")
		})
		inv := NewInvocation("", MustHandlerConfig("/raw", h), nil, nil)

		assert.Panics(t, func() { _, _ = inv.Dispatch(context.Background()) })
		assert.True(t, inv.Executed())

		_, err := inv.Dispatch(context.Background())
		assert.ErrorIs(t, err, ErrAlreadyExecuted)
	})

	t.Run("argument mismatch is a mechanism error", func(t *testing.T) {
		g := &greeter{}
		cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet), WithParams("name"))
		inv := NewInvocation("", cfg, g, []any{42})

		_, err := inv.Dispatch(context.Background())

		var ae *ArgumentError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 0, ae.Index)
		assert.Equal(t, 0, g.calls)
		assert.False(t, inv.Executed())

		require.NoError(t, inv.SetArgs([]any{"again"}))
		result, err := inv.Dispatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "hello again", result)
		assert.True(t, inv.Executed())
		assert.Equal(t, 1, g.calls)
	})

	t.Run("argument error returned by the handler marks executed", func(t *testing.T) {
		h := CallableFunc(func(context.Context, any, []any) (any, error) {
			return nil, &CallError{Err: &ArgumentError{Index: 0, Want: "x", Got: "y"}}
		})
		inv := NewInvocation("", MustHandlerConfig("/own", h), nil, nil)

		_, err := inv.Dispatch(context.Background())

		var ae *ArgumentError
		require.ErrorAs(t, err, &ae)
		assert.True(t, inv.Executed())
	})
}

func TestInvocation_Args(t *testing.T) {
	t.Run("interceptor rewrites args before the handler", func(t *testing.T) {
		g := &greeter{}
		upper := RewriteArgs(func(_ context.Context, args []any) ([]any, error) {
			return []any{"planet " + args[0].(string)}, nil
		})
		cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet),
			WithParams("name"), WithInterceptors(upper))
		inv := NewInvocation("", cfg, g, []any{"earth"})

		result, err := inv.Dispatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "hello planet earth", result)
	})

	t.Run("args are frozen once the handler ran", func(t *testing.T) {
		inv := NewInvocation("", MustHandlerConfig("/x", (&trace{}).handler("ok")), nil, nil)
		require.NoError(t, inv.SetArgs([]any{1}))

		_, err := inv.Dispatch(context.Background())
		require.NoError(t, err)

		assert.ErrorIs(t, inv.SetArgs(nil), ErrArgsFrozen)
		assert.Equal(t, []any{1}, inv.Args())
	})

	t.Run("rewrite error stops the chain", func(t *testing.T) {
		errBad := errors.New("bad args")
		g := &greeter{}
		cfg := MustHandlerConfig("/greet", MustMethod((*greeter).Greet),
			WithParams("name"),
			WithInterceptors(RewriteArgs(func(context.Context, []any) ([]any, error) {
				return nil, errBad
			})))
		inv := NewInvocation("", cfg, g, []any{"x"})

		_, err := inv.Dispatch(context.Background())

		assert.ErrorIs(t, err, errBad)
		assert.Equal(t, 0, g.calls)
	})
}

func TestInvocation_Chaining(t *testing.T) {
	first := NewInvocation("", MustHandlerConfig("/a", (&trace{}).handler("chain:/b")), nil, nil)
	_, err := first.Dispatch(context.Background())
	require.NoError(t, err)
	first.SetNextPath("/b")

	second := NewInvocation("", MustHandlerConfig("/b", (&trace{}).handler("ok")), nil, nil,
		WithPrevious(first))

	assert.True(t, first.Executed())
	assert.False(t, second.Executed())
	assert.Equal(t, 0, second.Cursor())
	assert.Same(t, first, second.Previous())
	assert.Equal(t, "/b", first.NextPath())
	assert.Equal(t, 1, second.Depth())
	assert.Equal(t, []string{"/a", "/b"}, second.Chain())
	assert.NotEqual(t, first.ID(), second.ID())

	result, err := second.Dispatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.True(t, second.Executed())

	_, err = first.Dispatch(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestInvocation_Accessors(t *testing.T) {
	cfg := MustHandlerConfig("/cfg", (&trace{}).handler("ok"))
	req := &Request{Path: "/actual"}
	g := &greeter{}

	inv := NewInvocation("/actual", cfg, g, []any{"a"}, WithRequest(req))

	assert.Equal(t, "/actual", inv.Path())
	assert.Same(t, cfg, inv.Config())
	assert.Same(t, g, inv.Instance())
	assert.Same(t, req, inv.Request())
	assert.Nil(t, inv.Previous())
	assert.Equal(t, 0, inv.Depth())
	assert.Empty(t, inv.NextPath())
	assert.NotEmpty(t, inv.ID())
}
