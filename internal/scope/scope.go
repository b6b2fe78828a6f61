// Package scope carries per-request dispatch state through the pipeline.
//
// A RequestContext is attached to the request's context.Context at dispatch
// entry and travels with the request through filters, servlets and
// re-dispatch (forward/include). Nested dispatch on the same goroutine sees
// its own context; the enclosing one is reachable through Previous and is
// what the caller continues with after the nested dispatch returns. Nothing
// here lives in package-level mutable state, so concurrent requests never
// observe each other.
package scope

import (
	"context"
	"net/http"
	"sync"
)

type contextKey struct{}

// Well-known attribute names used by the pipeline.
const (
	// AttrForwarded marks a request that was re-dispatched via forward;
	// path memoization must recompute when it is present.
	AttrForwarded = "dispatch.forwarded"
	// AttrServletPath memoizes the computed servlet path.
	AttrServletPath = "dispatch.servlet_path"
	// AttrPathInfo memoizes the computed path info.
	AttrPathInfo = "dispatch.path_info"
	// AttrRequestID carries the request id assigned by the access log filter.
	AttrRequestID = "dispatch.request_id"
)

// RequestContext is the per-dispatch view of a request. Original is the
// request as it entered the pipeline; Request reflects the current
// (possibly wrapped or re-dispatched) request.
type RequestContext struct {
	Original *http.Request
	Request  *http.Request
	Response http.ResponseWriter

	// Previous is the enclosing dispatch context, non-nil during nested
	// dispatch (forwards/includes).
	Previous *RequestContext

	attrs *Attributes
}

// Enter attaches a new RequestContext to r and returns the updated request
// and the context. Any context already present becomes Previous. Request
// attributes are shared with the enclosing context so memoized state
// survives wrapping but is re-keyed on forward.
func Enter(r *http.Request, w http.ResponseWriter) (*http.Request, *RequestContext) {
	prev := FromRequest(r)
	rc := &RequestContext{
		Original: r,
		Request:  r,
		Response: w,
		Previous: prev,
	}
	if prev != nil {
		rc.Original = prev.Original
		rc.attrs = prev.attrs
	} else {
		rc.attrs = NewAttributes()
	}
	r = r.WithContext(context.WithValue(r.Context(), contextKey{}, rc))
	rc.Request = r
	return r, rc
}

// FromContext returns the RequestContext stored in ctx, or nil.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rc
}

// FromRequest returns the RequestContext attached to r, or nil.
func FromRequest(r *http.Request) *RequestContext {
	return FromContext(r.Context())
}

// Attributes returns the mutable per-request attribute set.
func (rc *RequestContext) Attributes() *Attributes {
	return rc.attrs
}

// Attributes is a concurrency-safe per-request attribute map, the analog of
// servlet request attributes.
type Attributes struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewAttributes creates an empty attribute set.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]any)}
}

// Get returns the value stored under name, or nil.
func (a *Attributes) Get(name string) any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.values[name]
}

// Set stores a value under name.
func (a *Attributes) Set(name string, value any) {
	a.mu.Lock()
	a.values[name] = value
	a.mu.Unlock()
}

// Remove deletes an attribute.
func (a *Attributes) Remove(name string) {
	a.mu.Lock()
	delete(a.values, name)
	a.mu.Unlock()
}

// Has reports whether an attribute is present.
func (a *Attributes) Has(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.values[name]
	return ok
}
