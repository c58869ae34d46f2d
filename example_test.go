package invoke_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/bjaus/invoke"
)

// Hello answers greetings.
type Hello struct{}

func (h *Hello) World(ctx context.Context, name string) (string, error) {
	return "hello " + name, nil
}

// Link hands the request over to /hello.world.
func (h *Hello) Link() string {
	return "chain:/hello.world"
}

func Example() {
	world := invoke.MustHandlerConfig("/hello.world",
		invoke.MustMethod((*Hello).World),
		invoke.WithParams("name"),
	)
	d := invoke.New(invoke.MustRegistry(world))

	out, err := d.Dispatch(context.Background(), &invoke.Request{
		Path:    "/hello.world",
		Payload: json.RawMessage(`{"name": "planet"}`),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out.Result)

	// Output:
	// hello planet
}

func Example_interceptors() {
	trace := func(name string) invoke.Interceptor {
		return invoke.InterceptorFunc(func(ctx context.Context, inv *invoke.Invocation) (any, error) {
			fmt.Println(name, "before")
			result, err := inv.Dispatch(ctx)
			fmt.Println(name, "after:", result)
			return result, err
		})
	}

	cfg := invoke.MustHandlerConfig("/ok",
		invoke.CallableFunc(func(context.Context, any, []any) (any, error) {
			fmt.Println("handler")
			return "ok", nil
		}),
		invoke.WithInterceptors(trace("A"), trace("B")),
	)

	inv := invoke.NewInvocation("", cfg, nil, nil)
	result, err := inv.Dispatch(context.Background())
	fmt.Println(result, err, inv.Executed())

	// Output:
	// A before
	// B before
	// handler
	// B after: ok
	// A after: ok
	// ok <nil> true
}

func Example_shortCircuit() {
	cfg := invoke.MustHandlerConfig("/secret",
		invoke.CallableFunc(func(context.Context, any, []any) (any, error) {
			fmt.Println("never printed")
			return "secret", nil
		}),
		invoke.WithInterceptors(invoke.Guard(func(ctx context.Context, inv *invoke.Invocation) bool {
			return inv.Request().Header["Authorization"] != ""
		}, "denied")),
	)
	d := invoke.New(invoke.MustRegistry(cfg))

	out, _ := d.Dispatch(context.Background(), &invoke.Request{Path: "/secret"})
	fmt.Println(out.Result, out.Invocation.Executed())

	// Output:
	// denied false
}

func Example_chaining() {
	reg := invoke.MustRegistry(
		invoke.MustHandlerConfig("/hello.link", invoke.MustMethod((*Hello).Link)),
		invoke.MustHandlerConfig("/hello.world", invoke.MustMethod((*Hello).World), invoke.WithParams("name")),
	)
	d := invoke.New(reg,
		invoke.WithOnChain(func(ctx context.Context, from *invoke.Invocation, next string) {
			fmt.Println("chain", from.Path(), "->", next)
		}),
	)

	out, err := d.Dispatch(context.Background(), &invoke.Request{
		Path:    "/hello.link",
		Payload: json.RawMessage(`{"name": "again"}`),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out.Result)
	fmt.Println(out.Hops)
	fmt.Println(out.Invocation.Previous().Path())

	// Output:
	// chain /hello.link -> /hello.world
	// hello again
	// [/hello.link /hello.world]
	// /hello.link
}

func Example_alreadyExecuted() {
	cfg := invoke.MustHandlerConfig("/once",
		invoke.CallableFunc(func(context.Context, any, []any) (any, error) {
			return "done", nil
		}),
	)
	inv := invoke.NewInvocation("", cfg, nil, nil)

	_, _ = inv.Dispatch(context.Background())
	_, err := inv.Dispatch(context.Background())

	fmt.Println(errors.Is(err, invoke.ErrAlreadyExecuted))
	fmt.Println(err)

	// Output:
	// true
	// invoke: handler already executed: /once
}

func Example_process() {
	world := invoke.MustHandlerConfig("/hello.world",
		invoke.MustMethod((*Hello).World),
		invoke.WithParams("name"),
	)
	d := invoke.New(invoke.MustRegistry(world),
		invoke.WithOnNoHandler(func(ctx context.Context, path string) error {
			fmt.Println("skipping", path)
			return nil
		}),
	)
	d.AddSource(invoke.JSONSource())

	out, _ := d.Process(context.Background(), []byte(`{"path": "/hello.world", "params": {"name": "bytes"}}`))
	fmt.Println(out.Result)

	out, _ = d.Process(context.Background(), []byte(`{"path": "/hello.unknown"}`))
	fmt.Println(out.Skipped)

	// Output:
	// hello bytes
	// skipping /hello.unknown
	// true
}
