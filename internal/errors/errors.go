// Package errors defines the error types surfaced by the dispatch pipeline:
// fatal configuration errors reported at build/init time, dispatch errors
// attached to failures propagating out of filters and servlets, and the
// JSON-encodable HTTP errors written on fallthrough.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ConfigError is a fatal pipeline configuration error. It is reported at
// configuration or init time, never deferred to request time.
type ConfigError struct {
	Component string // "filter", "servlet", "pattern", ...
	Key       string // offending binding key or pattern, if any
	Reason    string
	underlying error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if e.Key != "" {
		msg = fmt.Sprintf("%s %q: %s", e.Component, e.Key, e.Reason)
	} else if e.Component != "" {
		msg = fmt.Sprintf("%s: %s", e.Component, e.Reason)
	}
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", msg, e.underlying)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.underlying
}

// NewConfigError creates a ConfigError for the given component and key.
func NewConfigError(component, key, reason string) *ConfigError {
	return &ConfigError{Component: component, Key: key, Reason: reason}
}

// WrapConfig wraps an underlying error as a ConfigError.
func WrapConfig(err error, component, key, reason string) *ConfigError {
	return &ConfigError{Component: component, Key: key, Reason: reason, underlying: err}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) (*ConfigError, bool) {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrResponseCommitted is returned when a forward is attempted after the
// response has been committed. This is a programmer error at the caller.
var ErrResponseCommitted = errors.New("response has already been committed")

// DispatchError carries pipeline context for an error that escaped a filter
// or servlet. The original error is reachable through Unwrap, so callers
// observe the underlying category unmodified; the pipeline attaches this
// wrapper at most once per chain invocation.
type DispatchError struct {
	Phase string // "filter", "servlet" or "fallthrough"
	Name  string // binding key of the failing component
	Path  string // context-relative request path
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s %q (%s): %v", e.Phase, e.Name, e.Path, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// HTTPError is an error that can be written to clients as JSON. Base errors
// are pre-serialized to avoid per-request allocations.
type HTTPError struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// WriteJSON writes the error as JSON to the response.
func (e *HTTPError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	if pre, ok := preSerialized[e]; ok {
		w.Write(pre)
		return
	}
	json.NewEncoder(w).Encode(e)
}

// WithDetails returns a copy of the error with details attached.
func (e *HTTPError) WithDetails(details string) *HTTPError {
	return &HTTPError{Code: e.Code, Message: e.Message, Details: details, RequestID: e.RequestID}
}

// WithRequestID returns a copy of the error with a request ID attached.
func (e *HTTPError) WithRequestID(requestID string) *HTTPError {
	return &HTTPError{Code: e.Code, Message: e.Message, Details: e.Details, RequestID: requestID}
}

// Common fallthrough errors
var (
	ErrNotFound = &HTTPError{
		Code:    http.StatusNotFound,
		Message: "Not Found",
	}

	ErrInternalServer = &HTTPError{
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
	}

	ErrServiceUnavailable = &HTTPError{
		Code:    http.StatusServiceUnavailable,
		Message: "Service Unavailable",
	}
)

// preSerialized holds JSON-encoded bytes for base error singletons.
var preSerialized map[*HTTPError][]byte

func init() {
	bases := []*HTTPError{ErrNotFound, ErrInternalServer, ErrServiceUnavailable}
	preSerialized = make(map[*HTTPError][]byte, len(bases))
	for _, e := range bases {
		b, _ := json.Marshal(e)
		b = append(b, '\n') // match json.Encoder behavior
		preSerialized[e] = b
	}
}
