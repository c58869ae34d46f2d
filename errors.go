package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyExecuted matches any *AlreadyExecutedError via errors.Is.
	ErrAlreadyExecuted = errors.New("handler already executed")

	// ErrArgsFrozen is returned by SetArgs once the terminal handler call began.
	ErrArgsFrozen = errors.New("arguments are frozen")
)

// AlreadyExecutedError is returned when Dispatch is called on an Invocation
// whose handler already ran (or is running). The Invocation must not be
// retried; build a new one instead.
type AlreadyExecutedError struct {
	Path string
}

func (e *AlreadyExecutedError) Error() string {
	return "invoke: handler already executed: " + e.Path
}

// Is reports whether target is ErrAlreadyExecuted.
func (e *AlreadyExecutedError) Is(target error) bool {
	return target == ErrAlreadyExecuted
}

// ArgumentError reports arguments that cannot be passed to a callable.
// It is raised by the call mechanism before the handler runs.
type ArgumentError struct {
	Index int
	Want  string
	Got   string
}

func (e *ArgumentError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invoke: argument count mismatch: want %s, got %s", e.Want, e.Got)
	}
	return fmt.Sprintf("invoke: argument %d: want %s, got %s", e.Index, e.Want, e.Got)
}

// CallError is the call mechanism's wrapper around a handler failure.
// Invocation unwraps it so callers see the handler's own error.
type CallError struct {
	Err error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return "invoke: handler call failed"
	}
	return "invoke: handler call failed: " + e.Err.Error()
}

func (e *CallError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value that was not itself an error.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("invoke: handler panic: %v", e.Value)
}

// BindKind identifies which binding step failed.
type BindKind string

const (
	BindUnmarshal BindKind = "unmarshal"
	BindValidate  BindKind = "validate"
	BindArity     BindKind = "arity"
)

// BindError reports a failure to resolve handler arguments from a request.
type BindError struct {
	Path  string
	Param string
	Kind  BindKind
	Err   error
}

func (e *BindError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invoke: bind %s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("invoke: bind %s param %q: %s: %v", e.Path, e.Param, e.Kind, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// NoHandlerError is returned when no HandlerConfig is registered for a path.
type NoHandlerError struct {
	Path string
}

func (e *NoHandlerError) Error() string { return "invoke: no handler for path: " + e.Path }

// DuplicatePathError is returned by NewRegistry when two configs share a path.
type DuplicatePathError struct {
	Path string
}

func (e *DuplicatePathError) Error() string { return "invoke: duplicate path: " + e.Path }

// ChainDepthError is returned when a chain of invocations grows past the
// dispatcher's limit.
type ChainDepthError struct {
	Path string
	Max  int
}

func (e *ChainDepthError) Error() string {
	return fmt.Sprintf("invoke: chain to %s exceeds max depth %d", e.Path, e.Max)
}

// ChainCycleError is returned when a chain re-enters a path it already visited.
type ChainCycleError struct {
	Path  string
	Chain []string
}

func (e *ChainCycleError) Error() string {
	hops := make([]string, 0, len(e.Chain)+1)
	hops = append(hops, e.Chain...)
	hops = append(hops, e.Path)
	return fmt.Sprintf("invoke: chain cycle at %s: %s", e.Path, strings.Join(hops, " -> "))
}

// Error codes returned by Code.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeAlreadyExecuted = "ALREADY_EXECUTED"
	CodeChainAborted    = "CHAIN_ABORTED"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeTimeout         = "TIMEOUT"
	CodeHandlerError    = "HANDLER_ERROR"
)

// Coder is implemented by handler errors that carry their own code.
type Coder interface {
	Code() string
}

// Code maps an error to a stable code for transports. Errors implementing
// Coder win over the built-in mapping.
func Code(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}

	var (
		noHandler *NoHandlerError
		bind      *BindError
		arg       *ArgumentError
		depth     *ChainDepthError
		cycle     *ChainCycleError
	)
	switch {
	case errors.As(err, &noHandler):
		return CodeNotFound
	case errors.As(err, &bind), errors.As(err, &arg):
		return CodeInvalidArgument
	case errors.Is(err, ErrAlreadyExecuted):
		return CodeAlreadyExecuted
	case errors.As(err, &depth), errors.As(err, &cycle):
		return CodeChainAborted
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrNoSource), errors.Is(err, ErrMissingPath):
		return CodeInvalidRequest
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeHandlerError
	}
}
