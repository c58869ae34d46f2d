package invoke

import (
	"errors"
	"sort"
)

// Registry is the routing table: every HandlerConfig, keyed by path.
//
// A Registry is built once and never changes, so one value can be shared by
// any number of dispatchers. Build a new one to change routing.
type Registry struct {
	configs map[string]*HandlerConfig
	paths   []string
}

// NewRegistry builds a Registry from configs. Paths must be unique.
//
// Example:
//
//	reg, err := invoke.NewRegistry(worldCfg, linkCfg)
func NewRegistry(configs ...*HandlerConfig) (*Registry, error) {
	r := &Registry{configs: make(map[string]*HandlerConfig, len(configs))}
	for _, c := range configs {
		if c == nil {
			return nil, errors.New("invoke: registry: nil handler config")
		}
		if _, dup := r.configs[c.Path()]; dup {
			return nil, &DuplicatePathError{Path: c.Path()}
		}
		r.configs[c.Path()] = c
		r.paths = append(r.paths, c.Path())
	}
	sort.Strings(r.paths)
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(configs ...*HandlerConfig) *Registry {
	r, err := NewRegistry(configs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the HandlerConfig registered for path.
func (r *Registry) Lookup(path string) (*HandlerConfig, bool) {
	c, ok := r.configs[path]
	return c, ok
}

// Paths returns all registered paths in sorted order.
func (r *Registry) Paths() []string {
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Len returns the number of registered paths.
func (r *Registry) Len() int { return len(r.paths) }
