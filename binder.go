package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/tidwall/gjson"
)

// Binder resolves the handler arguments for a request.
type Binder interface {
	Bind(ctx context.Context, cfg *HandlerConfig, req *Request) ([]any, error)
}

// BinderFunc is a function adapter for Binder.
type BinderFunc func(ctx context.Context, cfg *HandlerConfig, req *Request) ([]any, error)

// Bind implements the Binder interface.
func (f BinderFunc) Bind(ctx context.Context, cfg *HandlerConfig, req *Request) ([]any, error) {
	return f(ctx, cfg, req)
}

// validatable is the interface for argument validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// JSONBinder returns the default Binder. Each parameter name is a gjson path
// into the request payload; when the payload lacks it, the request's Vars
// are consulted. The value is decoded into the handler's argument type and
// validated if the type implements Validate() error. Missing values bind to
// the zero value.
//
// Configs without parameters bind no arguments. Configs whose callable does
// not report argument types bind each value as its raw JSON.
func JSONBinder() Binder {
	return BinderFunc(bindJSON)
}

func bindJSON(_ context.Context, cfg *HandlerConfig, req *Request) ([]any, error) {
	params := cfg.Params()
	types := cfg.ArgTypes()

	if len(params) == 0 {
		if len(types) > 0 {
			return nil, &BindError{
				Path: cfg.Path(),
				Kind: BindArity,
				Err:  fmt.Errorf("%d arguments but no params declared", len(types)),
			}
		}
		return nil, nil
	}

	args := make([]any, len(params))
	for i, name := range params {
		var t reflect.Type
		if types != nil {
			t = types[i]
		}
		raw, found := lookupParam(req, name, t)

		if t == nil {
			if found {
				args[i] = raw
			}
			continue
		}

		ptr := reflect.New(t)
		if found {
			if err := unmarshalParam(raw, ptr.Interface(), t); err != nil {
				return nil, &BindError{Path: cfg.Path(), Param: name, Kind: BindUnmarshal, Err: err}
			}
		}

		if v, ok := ptr.Elem().Interface().(validatable); ok && !isNilValue(ptr.Elem()) {
			if err := v.Validate(); err != nil {
				return nil, &BindError{Path: cfg.Path(), Param: name, Kind: BindValidate, Err: err}
			}
		} else if v, ok := ptr.Interface().(validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, &BindError{Path: cfg.Path(), Param: name, Kind: BindValidate, Err: err}
			}
		}

		args[i] = ptr.Elem().Interface()
	}
	return args, nil
}

// lookupParam returns the JSON encoding of the named value. t is the target
// type, used to decide how a transport variable is encoded.
func lookupParam(req *Request, name string, t reflect.Type) (json.RawMessage, bool) {
	if req == nil {
		return nil, false
	}
	if len(req.Payload) > 0 {
		if r := gjson.GetBytes(req.Payload, name); r.Exists() {
			return json.RawMessage(r.Raw), true
		}
	}
	if s, ok := req.Vars[name]; ok {
		return varJSON(s, t), true
	}
	return nil, false
}

// varJSON encodes a transport variable. Numbers and booleans pass through
// unquoted unless the target is a string.
func varJSON(s string, t reflect.Type) json.RawMessage {
	if t != nil && t.Kind() == reflect.String {
		b, _ := json.Marshal(s)
		return b
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	if s == "true" || s == "false" {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

// unmarshalParam decodes raw into ptr. A JSON string bound to a non-string
// target is retried as a transport variable, so form fields like "3" bind
// to an int.
func unmarshalParam(raw json.RawMessage, ptr any, t reflect.Type) error {
	err := json.Unmarshal(raw, ptr)
	if err == nil || t.Kind() == reflect.String || len(raw) == 0 || raw[0] != '"' {
		return err
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return err
	}
	if retry := json.Unmarshal(varJSON(s, t), ptr); retry != nil {
		return err
	}
	return nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
