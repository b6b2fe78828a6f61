// Package pipeline implements the managed filter/servlet dispatch pipeline:
// ordered chain-of-responsibility over registered filters, terminal servlet
// dispatch, and fallthrough to the host handler.
package pipeline

import (
	"net/http"
)

// ServletContext describes the deployment the pipeline serves. ContextPath
// is the prefix stripped from request URIs before pattern matching (the
// context-relative path).
type ServletContext struct {
	Name        string
	ContextPath string
}

// FilterConfig is passed to a filter's Init callback.
type FilterConfig struct {
	// Name is the binding key the filter was registered under.
	Name string
	// InitParams are the configured init parameters for this definition.
	InitParams map[string]string
	// Context is the hosting deployment context.
	Context *ServletContext
}

// InitParam returns a named init parameter, or def when absent.
func (c *FilterConfig) InitParam(name, def string) string {
	if v, ok := c.InitParams[name]; ok {
		return v
	}
	return def
}

// ServletConfig is passed to a servlet's Init callback. It has the same
// shape as FilterConfig; the two are distinct types so a component bound as
// both cannot confuse its configurations.
type ServletConfig struct {
	Name       string
	InitParams map[string]string
	Context    *ServletContext
}

// InitParam returns a named init parameter, or def when absent.
func (c *ServletConfig) InitParam(name, def string) string {
	if v, ok := c.InitParams[name]; ok {
		return v
	}
	return def
}

// Chain continues dispatch past the current filter. A filter that wants the
// request to proceed calls DoFilter on its chain; one that handles the
// request itself simply returns without calling it.
type Chain interface {
	DoFilter(w http.ResponseWriter, r *http.Request) error
}

// Filter participates in the dispatch chain for requests matching its
// pattern. Implementations must be bound as singletons; Init and Destroy
// are called once per instance per pipeline lifecycle even when the same
// instance is bound under several patterns.
type Filter interface {
	Init(cfg *FilterConfig) error
	DoFilter(w http.ResponseWriter, r *http.Request, chain Chain) error
	Destroy()
}

// Servlet terminally services requests matching its pattern. At most one
// servlet services any request.
type Servlet interface {
	Init(cfg *ServletConfig) error
	Service(w http.ResponseWriter, r *http.Request) error
	Destroy()
}

// FilterHandler adapts a function to a Filter with no-op lifecycle
// callbacks. Each call returns a distinct instance, so lifecycle identity
// tracking behaves the same as for ordinary pointer-typed filters.
func FilterHandler(fn func(w http.ResponseWriter, r *http.Request, chain Chain) error) Filter {
	return &funcFilter{fn: fn}
}

type funcFilter struct {
	fn func(w http.ResponseWriter, r *http.Request, chain Chain) error
}

func (f *funcFilter) Init(*FilterConfig) error { return nil }

func (f *funcFilter) DoFilter(w http.ResponseWriter, r *http.Request, chain Chain) error {
	return f.fn(w, r, chain)
}

func (f *funcFilter) Destroy() {}

// ServletHandler adapts a function to a Servlet with no-op lifecycle
// callbacks.
func ServletHandler(fn func(w http.ResponseWriter, r *http.Request) error) Servlet {
	return &funcServlet{fn: fn}
}

type funcServlet struct {
	fn func(w http.ResponseWriter, r *http.Request) error
}

func (s *funcServlet) Init(*ServletConfig) error { return nil }

func (s *funcServlet) Service(w http.ResponseWriter, r *http.Request) error {
	return s.fn(w, r)
}

func (s *funcServlet) Destroy() {}
