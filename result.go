package invoke

import "strings"

// ChainPrefix marks a string result that chains into another path, as in
// "chain:/hello.link".
const ChainPrefix = "chain:"

// ResultInterpreter decides whether a handler result asks for a chained
// invocation, and of which path.
type ResultInterpreter interface {
	Next(inv *Invocation, result any) (path string, ok bool)
}

// InterpreterFunc is a function adapter for ResultInterpreter.
type InterpreterFunc func(inv *Invocation, result any) (string, bool)

// Next implements the ResultInterpreter interface.
func (f InterpreterFunc) Next(inv *Invocation, result any) (string, bool) {
	return f(inv, result)
}

// TokenInterpreter returns the default ResultInterpreter: a string result
// of the form "chain:<path>" chains into <path>. Every other result ends
// the dispatch.
func TokenInterpreter() ResultInterpreter {
	return InterpreterFunc(func(_ *Invocation, result any) (string, bool) {
		s, ok := result.(string)
		if !ok {
			return "", false
		}
		path, found := strings.CutPrefix(s, ChainPrefix)
		if !found || path == "" {
			return "", false
		}
		return path, true
	})
}

// Outcome is the result of a complete dispatch, including any chained hops.
type Outcome struct {
	// Result is the value returned by the last Invocation in the chain.
	Result any

	// Invocation is the last Invocation; walk Previous for the others.
	Invocation *Invocation

	// Hops lists every path executed, in order.
	Hops []string

	// Skipped is set when an error hook chose to drop the request.
	Skipped bool
}
