package invoke

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Request is an inbound request as seen by the Dispatcher, already
// unwrapped from its transport.
type Request struct {
	// Path selects the HandlerConfig.
	Path string

	// Payload is the raw JSON arguments are bound from.
	Payload json.RawMessage

	// Vars are values extracted by the transport (route variables, query
	// parameters). Binders consult them when Payload lacks a field.
	Vars map[string]string

	// Header carries transport metadata such as authorization.
	Header map[string]string
}

// SetParam writes value into Payload at path, creating the payload and any
// intermediate objects as needed. Dotted paths nest: "p.name" sets
// {"p": {"name": value}}.
func (r *Request) SetParam(path string, value any) error {
	payload := r.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	out, err := sjson.SetBytes(payload, path, value)
	if err != nil {
		return err
	}
	r.Payload = out
	return nil
}

// Source parses raw message bytes into a Request.
//
// Sources are registered with Dispatcher.AddSource and matched using their
// Discriminator before Parse is called, so a cheap field check rules out
// formats that don't apply.
//
// Example:
//
//	type mySource struct{}
//
//	func (s *mySource) Name() string { return "my-source" }
//
//	func (s *mySource) Discriminator() invoke.Discriminator {
//	    return invoke.HasFields("action", "args")
//	}
//
//	func (s *mySource) Parse(raw []byte) (*invoke.Request, error) {
//	    var env struct {
//	        Action string          `json:"action"`
//	        Args   json.RawMessage `json:"args"`
//	    }
//	    if err := json.Unmarshal(raw, &env); err != nil {
//	        return nil, err
//	    }
//	    return &invoke.Request{Path: env.Action, Payload: env.Args}, nil
//	}
type Source interface {
	// Name returns the source identifier for logging and metrics.
	Name() string

	// Discriminator returns a predicate for cheap message detection.
	Discriminator() Discriminator

	// Parse turns raw bytes into a Request, or explains why it can't.
	Parse(raw []byte) (*Request, error)
}

// SourceFunc creates a Source from a name, discriminator, and parse function.
func SourceFunc(name string, disc Discriminator, parse func([]byte) (*Request, error)) Source {
	return &sourceFunc{name: name, disc: disc, parse: parse}
}

type sourceFunc struct {
	name  string
	disc  Discriminator
	parse func([]byte) (*Request, error)
}

func (s *sourceFunc) Name() string                       { return s.name }
func (s *sourceFunc) Discriminator() Discriminator       { return s.disc }
func (s *sourceFunc) Parse(raw []byte) (*Request, error) { return s.parse(raw) }

// ErrMissingPath is returned by JSONSource when the envelope has no path.
var ErrMissingPath = errors.New("missing path field")

// ErrNoSource is returned by Process when no source matches a message and
// no OnNoSource hook is configured.
var ErrNoSource = errors.New("invoke: no source matched message")

// JSONSource returns the default Source for envelopes of the form
//
//	{"path": "/hello.world", "params": {...}, "headers": {...}}
func JSONSource() Source {
	return SourceFunc("json", HasFields("path"), parseJSONEnvelope)
}

func parseJSONEnvelope(raw []byte) (*Request, error) {
	path := gjson.GetBytes(raw, "path")
	if path.Type != gjson.String || path.String() == "" {
		return nil, ErrMissingPath
	}

	req := &Request{Path: path.String()}
	if params := gjson.GetBytes(raw, "params"); params.Exists() {
		req.Payload = json.RawMessage(params.Raw)
	}
	if headers := gjson.GetBytes(raw, "headers"); headers.IsObject() {
		req.Header = make(map[string]string)
		headers.ForEach(func(k, v gjson.Result) bool {
			req.Header[k.String()] = v.String()
			return true
		})
	}
	return req, nil
}
