package pipeline

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/registry"
	"github.com/example/dispatch/internal/scope"
)

// ServletPipeline resolves the first matching servlet definition for a
// request and services it. Registration order is the documented contract:
// the first pattern that matches wins, not the longest.
type ServletPipeline struct {
	context  *ServletContext
	servlets []*ServletDefinition
}

// NewServletPipeline creates a pipeline over the given definitions.
// Two servlets mapped to the same URI pattern is a configuration error,
// reported here, before any request is dispatched.
func NewServletPipeline(ctx *ServletContext, defs []*ServletDefinition) (*ServletPipeline, error) {
	patterns := make(map[string]string, len(defs))
	for _, sd := range defs {
		if prior, dup := patterns[sd.Pattern()]; dup {
			return nil, errors.NewConfigError("servlet", sd.Key(),
				"pattern "+sd.Pattern()+" already mapped to "+prior)
		}
		patterns[sd.Pattern()] = sd.Key()
	}
	return &ServletPipeline{context: ctx, servlets: defs}, nil
}

// HasServlets reports whether any servlet is registered. The chain skips
// dispatcher-aware request wrapping when none is.
func (sp *ServletPipeline) HasServlets() bool {
	return len(sp.servlets) > 0
}

// Init resolves and initializes all servlet definitions, sharing the
// identity set with the enclosing pipeline's init pass.
func (sp *ServletPipeline) Init(reg *registry.Registry, initialized map[any]bool) error {
	for _, sd := range sp.servlets {
		if err := sd.Init(sp.context, reg, initialized); err != nil {
			return err
		}
	}
	return nil
}

// Destroy tears down all servlet definitions, at most once per distinct
// instance.
func (sp *ServletPipeline) Destroy(destroyed map[any]bool) {
	for _, sd := range sp.servlets {
		sd.Destroy(destroyed)
	}
}

// Service dispatches the request to the first matching servlet. It returns
// true when a servlet serviced the request, false when none matched.
func (sp *ServletPipeline) Service(w http.ResponseWriter, r *http.Request) (bool, error) {
	path := sp.contextRelativePath(r)
	for _, sd := range sp.servlets {
		s := sd.GetIfMatching(path)
		if s == nil {
			continue
		}
		sp.memoizePaths(sd, path, r)
		return true, s.Service(w, r)
	}
	return false, nil
}

// Dispatcher returns a forward/include dispatcher for the servlet mapped to
// path, or nil when no servlet matches.
func (sp *ServletPipeline) Dispatcher(path string) *Dispatcher {
	stripped := stripQueryString(path)
	for _, sd := range sp.servlets {
		if sd.GetIfMatching(stripped) != nil {
			return &Dispatcher{pipeline: sp, def: sd, path: path}
		}
	}
	return nil
}

// contextRelativePath strips the deployment context path from the URI.
func (sp *ServletPipeline) contextRelativePath(r *http.Request) string {
	return ContextRelativePath(sp.context, r)
}

// memoizePaths stores the servlet path and path info in the request scope.
// A request carrying the forward marker recomputes; others reuse the values
// already present.
func (sp *ServletPipeline) memoizePaths(sd *ServletDefinition, path string, r *http.Request) {
	rc := scope.FromRequest(r)
	if rc == nil {
		return
	}
	attrs := rc.Attributes()
	if attrs.Has(scope.AttrServletPath) && !attrs.Has(scope.AttrForwarded) {
		return
	}
	servletPath := sd.servletPath(path)
	attrs.Set(scope.AttrServletPath, servletPath)
	attrs.Set(scope.AttrPathInfo, sd.pathInfo(path, servletPath))
	attrs.Remove(scope.AttrForwarded)
}

// ServletPath returns the memoized servlet path for a serviced request.
func ServletPath(r *http.Request) string {
	if rc := scope.FromRequest(r); rc != nil {
		if p, ok := rc.Attributes().Get(scope.AttrServletPath).(string); ok {
			return p
		}
	}
	return ""
}

// PathInfo returns the memoized path info for a serviced request.
func PathInfo(r *http.Request) string {
	if rc := scope.FromRequest(r); rc != nil {
		if p, ok := rc.Attributes().Get(scope.AttrPathInfo).(string); ok {
			return p
		}
	}
	return ""
}

// ContextRelativePath computes the request URI relative to the deployment
// context root.
func ContextRelativePath(ctx *ServletContext, r *http.Request) string {
	path := r.URL.Path
	if ctx != nil && ctx.ContextPath != "" {
		path = strings.TrimPrefix(path, ctx.ContextPath)
	}
	if path == "" {
		path = "/"
	}
	return path
}

func stripQueryString(uri string) string {
	if i := strings.IndexByte(uri, '?'); i != -1 {
		return uri[:i]
	}
	return uri
}

type pipelineKey struct{}

// withDispatcherAccess attaches the servlet pipeline to the request so
// handlers can obtain dispatchers through DispatcherFor. The chain applies
// it only when at least one servlet is registered, sparing unmapped
// deployments the wrapper.
func withDispatcherAccess(r *http.Request, sp *ServletPipeline) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), pipelineKey{}, sp))
}

// DispatcherFor returns a forward/include dispatcher for path, or nil when
// the request was not dispatched through a pipeline with registered
// servlets or no servlet matches path.
func DispatcherFor(r *http.Request, path string) *Dispatcher {
	sp, _ := r.Context().Value(pipelineKey{}).(*ServletPipeline)
	if sp == nil {
		return nil
	}
	return sp.Dispatcher(path)
}

// Dispatcher re-dispatches a request into the managed servlet pipeline,
// bound to one servlet definition at build time.
type Dispatcher struct {
	pipeline *ServletPipeline
	def      *ServletDefinition
	path     string
}

// Forward re-dispatches the request to the bound servlet, replacing the
// response. Forwarding to a committed response is a programmer error; the
// pending response headers are discarded before dispatch.
func (d *Dispatcher) Forward(w http.ResponseWriter, r *http.Request) error {
	if committed(w) {
		return errors.ErrResponseCommitted
	}
	if rw, ok := w.(*responseWriter); ok {
		rw.reset()
	}
	return d.dispatch(w, r, true)
}

// Include re-dispatches the request to the bound servlet without touching
// the response state accumulated so far.
func (d *Dispatcher) Include(w http.ResponseWriter, r *http.Request) error {
	return d.dispatch(w, r, false)
}

func (d *Dispatcher) dispatch(w http.ResponseWriter, r *http.Request, forward bool) error {
	target := r.Clone(r.Context())
	target.URL.Path = stripQueryString(d.path)
	if i := strings.IndexByte(d.path, '?'); i != -1 {
		target.URL.RawQuery = d.path[i+1:]
	}
	target, rc := scope.Enter(target, w)
	if forward {
		rc.Attributes().Set(scope.AttrForwarded, true)
	}

	path := d.pipeline.contextRelativePath(target)
	d.pipeline.memoizePaths(d.def, path, target)
	return d.def.instance.Service(w, target)
}
