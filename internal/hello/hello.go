// Package hello holds the sample handlers served by invoked.
package hello

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bjaus/invoke"
)

// Paths served by Registry.
const (
	PathWorld  = "/hello.world"
	PathBean   = "/hello.bean"
	PathMany   = "/hello.many"
	PathChain  = "/hello.chain"
	PathLink   = "/hello.link"
	PathSecret = "/hello.secret"
)

// Denied is returned by guarded paths when the caller isn't authorized.
const Denied = "denied"

// Person is a bound request argument.
type Person struct {
	Name string `json:"name"`
	Data int    `json:"data"`
}

// Validate implements argument validation.
func (p Person) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// Greeting is the result of World.
type Greeting struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Hello handles the /hello.* paths. A new Hello is created per invocation.
type Hello struct{}

// World greets name.
func (h *Hello) World(_ context.Context, name string, data int) (Greeting, error) {
	return Greeting{
		Name:    "planet " + name,
		Message: fmt.Sprintf("and Universe %d", data),
	}, nil
}

// Bean echoes a validated person.
func (h *Hello) Bean(p Person) Person {
	return p
}

// Many lists people, one per line.
func (h *Hello) Many(people []Person) string {
	if len(people) == 0 {
		return "-"
	}
	var sb strings.Builder
	for i, p := range people {
		fmt.Fprintf(&sb, "%d %s-%d\n", i, p.Name, p.Data)
	}
	return sb.String()
}

// Chain hands the request over to Link.
func (h *Hello) Chain() string {
	return invoke.ChainPrefix + PathLink
}

// Link counts one more hop.
func (h *Hello) Link(chain int) map[string]int {
	return map[string]int{"chain": chain + 1}
}

// Secret answers authorized callers only; see Authorized.
func (h *Hello) Secret() string {
	return "the answer is 42"
}

// Authorized accepts requests carrying a bearer token.
func Authorized(_ context.Context, inv *invoke.Invocation) bool {
	req := inv.Request()
	if req == nil {
		return false
	}
	token, ok := strings.CutPrefix(req.Header["Authorization"], "Bearer ")
	return ok && token != ""
}

// Registry builds the routing table for the hello handlers. Every path logs
// through logger.
func Registry(logger *slog.Logger) (*invoke.Registry, error) {
	logging := invoke.Logging(logger)

	configs := []struct {
		path   string
		method any
		opts   []invoke.ConfigOption
	}{
		{PathWorld, (*Hello).World, []invoke.ConfigOption{invoke.WithParams("name", "data")}},
		{PathBean, (*Hello).Bean, []invoke.ConfigOption{invoke.WithParams("p")}},
		{PathMany, (*Hello).Many, []invoke.ConfigOption{invoke.WithParams("ppp")}},
		{PathChain, (*Hello).Chain, nil},
		{PathLink, (*Hello).Link, []invoke.ConfigOption{invoke.WithParams("chain")}},
		{PathSecret, (*Hello).Secret, []invoke.ConfigOption{
			invoke.WithInterceptors(invoke.Guard(Authorized, Denied)),
		}},
	}

	out := make([]*invoke.HandlerConfig, 0, len(configs))
	for _, c := range configs {
		m, err := invoke.Method(c.method)
		if err != nil {
			return nil, fmt.Errorf("hello: %s: %w", c.path, err)
		}
		opts := append([]invoke.ConfigOption{invoke.WithInterceptors(logging)}, c.opts...)
		cfg, err := invoke.NewHandlerConfig(c.path, m, opts...)
		if err != nil {
			return nil, fmt.Errorf("hello: %w", err)
		}
		out = append(out, cfg)
	}
	return invoke.NewRegistry(out...)
}
