package pipeline

import (
	"net/http"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/metrics"
)

// ChainInvocation walks the ordered filter definitions for one request,
// invoking each matching filter in registration order, then falls through
// to servlet dispatch and finally to the host handler.
//
// An invocation is created fresh per request and traversed on a single
// goroutine; it is single-use and not safe for concurrent reuse. The
// cursor only moves forward, so every definition is visited at most once
// per invocation and traversal terminates even when patterns alias.
type ChainInvocation struct {
	context  *ServletContext
	filters  []*FilterDefinition
	servlets *ServletPipeline
	host     http.Handler
	metrics  *metrics.Collector

	cursor           int
	invoked          int
	wrapped          bool // dispatcher-aware request wrapping applied
	errAttached      bool // dispatch context attached to a propagating error
	servletAttempted bool
	fellThrough      bool
	outcome          string
}

func newChainInvocation(ctx *ServletContext, filters []*FilterDefinition, servlets *ServletPipeline, host http.Handler, collector *metrics.Collector) *ChainInvocation {
	return &ChainInvocation{
		context:  ctx,
		filters:  filters,
		servlets: servlets,
		host:     host,
		metrics:  collector,
	}
}

// DoFilter advances the chain: it scans forward for the next filter whose
// pattern matches the request and invokes it with this same invocation as
// its continuation. When the scan exhausts the list it attempts exactly one
// servlet dispatch, and if no servlet serviced the request it invokes the
// host handler exactly once.
func (c *ChainInvocation) DoFilter(w http.ResponseWriter, r *http.Request) error {
	if !c.wrapped {
		c.wrapped = true
		if c.servlets.HasServlets() {
			r = withDispatcherAccess(r, c.servlets)
		}
	}

	path := ContextRelativePath(c.context, r)

	for c.cursor < len(c.filters) {
		fd := c.filters[c.cursor]
		c.cursor++

		f := fd.GetIfMatching(path)
		if f == nil {
			continue
		}

		c.invoked++
		c.metrics.RecordFilter(fd.Key())
		if err := f.DoFilter(w, r, c); err != nil {
			return c.attach("filter", fd.Key(), path, err)
		}
		return nil
	}

	if !c.servletAttempted {
		c.servletAttempted = true
		handled, err := c.servlets.Service(w, r)
		if err != nil {
			c.outcome = metrics.OutcomeError
			return c.attach("servlet", "", path, err)
		}
		if handled {
			c.outcome = metrics.OutcomeServlet
			return nil
		}
	}

	if !c.fellThrough {
		c.fellThrough = true
		c.outcome = metrics.OutcomeFallthrough
		c.host.ServeHTTP(w, r)
	}
	return nil
}

// FiltersInvoked returns the number of filters invoked so far.
func (c *ChainInvocation) FiltersInvoked() int {
	return c.invoked
}

// Outcome reports how the invocation ended, one of the metrics outcome
// labels, or "" when dispatch has not reached a terminal state.
func (c *ChainInvocation) Outcome() string {
	return c.outcome
}

// attach adds dispatch context to a propagating error at most once per
// invocation. The same error passes back through every enclosing DoFilter
// frame; without the guard each level would stack another wrapper, the way
// naive rethrow-with-context pollutes a stack trace.
func (c *ChainInvocation) attach(phase, name, path string, err error) error {
	c.outcome = metrics.OutcomeError
	if c.errAttached {
		return err
	}
	c.errAttached = true
	return &errors.DispatchError{Phase: phase, Name: name, Path: path, Err: err}
}
