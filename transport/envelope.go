// Package transport holds the wire envelope shared by the invoke transports.
package transport

import (
	"encoding/json"

	"github.com/bjaus/invoke"
)

// Request is the JSON envelope clients publish to the NATS transport. The
// server reads it with invoke.JSONSource.
type Request struct {
	ID        string            `json:"id,omitempty"`
	Path      string            `json:"path"`
	Params    json.RawMessage   `json:"params,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	TimeoutMs int               `json:"timeoutMs,omitempty"`
}

// Response is the JSON envelope returned by the transports.
type Response struct {
	ID      string       `json:"id,omitempty"`
	Ok      bool         `json:"ok"`
	Path    string       `json:"path,omitempty"`
	Hops    []string     `json:"hops,omitempty"`
	Skipped bool         `json:"skipped,omitempty"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// NewResponse renders the result of a dispatch.
func NewResponse(id string, out *invoke.Outcome, err error) *Response {
	if err != nil {
		return Failure(id, err)
	}
	resp := &Response{ID: id, Ok: true}
	if out == nil {
		return resp
	}
	resp.Hops = out.Hops
	resp.Skipped = out.Skipped
	resp.Result = out.Result
	if out.Invocation != nil {
		resp.Path = out.Invocation.Path()
	}
	return resp
}

// Failure renders err with the code invoke.Code assigns it.
func Failure(id string, err error) *Response {
	code := invoke.Code(err)
	return &Response{
		ID: id,
		Error: &ErrorDetail{
			Code:      code,
			Message:   err.Error(),
			Retryable: code == invoke.CodeTimeout,
		},
	}
}

// InvalidRequest renders an envelope that could not be decoded.
func InvalidRequest(id, message string) *Response {
	return &Response{
		ID:    id,
		Error: &ErrorDetail{Code: invoke.CodeInvalidRequest, Message: message},
	}
}
