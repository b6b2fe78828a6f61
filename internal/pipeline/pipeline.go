package pipeline

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/logging"
	"github.com/example/dispatch/internal/metrics"
	"github.com/example/dispatch/internal/registry"
	"github.com/example/dispatch/internal/scope"
	"go.uber.org/zap"
)

// ManagedPipeline is the top-level dispatch entry point. It owns the
// ordered filter definitions and the servlet pipeline, initializes them
// lazily on the first dispatched request, and tears them down on
// DestroyPipeline.
//
// The definition slices are built once and read-only after construction;
// the only shared mutable state is the init guard, which uses an atomic
// flag plus a mutex so the already-initialized path takes no lock.
type ManagedPipeline struct {
	context  *ServletContext
	registry *registry.Registry
	filters  []*FilterDefinition
	servlets *ServletPipeline
	metrics  *metrics.Collector
	log      *zap.Logger

	initialized atomic.Bool
	initMu      sync.Mutex
	initErr     error

	destroyMu sync.Mutex
	destroyed bool
}

// NewManagedPipeline builds a pipeline over the given definitions.
// Duplicate servlet patterns are rejected here, at configuration time.
// collector may be nil to disable metrics.
func NewManagedPipeline(ctx *ServletContext, reg *registry.Registry, filters []*FilterDefinition, servlets []*ServletDefinition, collector *metrics.Collector) (*ManagedPipeline, error) {
	if ctx == nil {
		ctx = &ServletContext{}
	}
	sp, err := NewServletPipeline(ctx, servlets)
	if err != nil {
		return nil, err
	}
	return &ManagedPipeline{
		context:  ctx,
		registry: reg,
		filters:  filters,
		servlets: sp,
		metrics:  collector,
		log:      logging.Named("pipeline"),
	}, nil
}

// InitPipeline resolves and initializes every filter and servlet
// definition. It runs at most once; concurrent first requests race on the
// guard, one wins, the rest wait and observe the result. The init error,
// if any, is sticky: a misconfigured pipeline fails every dispatch.
func (p *ManagedPipeline) InitPipeline() error {
	if p.initialized.Load() {
		return p.initErr
	}

	p.initMu.Lock()
	defer p.initMu.Unlock()
	if p.initialized.Load() {
		return p.initErr
	}

	p.initErr = p.initAll()
	p.initialized.Store(true)

	if p.initErr != nil {
		p.log.Error("pipeline init failed", zap.Error(p.initErr))
	} else {
		p.metrics.RecordInit()
		p.log.Info("pipeline initialized",
			zap.Int("filters", len(p.filters)),
			zap.Int("servlets", len(p.servlets.servlets)),
		)
	}
	return p.initErr
}

// initAll runs one init pass with a single identity set, so an instance
// bound under several definitions initializes once.
func (p *ManagedPipeline) initAll() error {
	initialized := make(map[any]bool)
	for _, fd := range p.filters {
		if err := fd.Init(p.context, p.registry, initialized); err != nil {
			return err
		}
	}
	return p.servlets.Init(p.registry, initialized)
}

// Dispatch runs one request through the pipeline. host is the enclosing
// container's own handling, invoked exactly once when neither a filter nor
// a servlet produces the response.
func (p *ManagedPipeline) Dispatch(w http.ResponseWriter, r *http.Request, host http.Handler) error {
	if err := p.InitPipeline(); err != nil {
		return err
	}
	if host == nil {
		host = http.NotFoundHandler()
	}

	start := time.Now()
	if _, ok := w.(Committer); !ok {
		w = wrapResponseWriter(w)
	}
	r, _ = scope.Enter(r, w)

	inv := newChainInvocation(p.context, p.filters, p.servlets, host, p.metrics)
	err := inv.DoFilter(w, r)

	outcome := inv.Outcome()
	if outcome == "" {
		// A filter handled the request without advancing to the end.
		outcome = metrics.OutcomeFilter
	}
	if err != nil {
		outcome = metrics.OutcomeError
	}
	p.metrics.RecordDispatch(outcome, inv.FiltersInvoked(), time.Since(start))
	return err
}

// DestroyPipeline tears the pipeline down: servlet pipeline first, then
// the filter definitions. The identity set is fresh, independent of the
// init-time set, so aliased singletons are destroyed once. Calling
// DestroyPipeline repeatedly is tolerated.
func (p *ManagedPipeline) DestroyPipeline() {
	p.destroyMu.Lock()
	defer p.destroyMu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true

	destroyed := make(map[any]bool)
	p.servlets.Destroy(destroyed)
	for _, fd := range p.filters {
		fd.Destroy(destroyed)
	}
	p.log.Info("pipeline destroyed")
}

// Handler adapts the pipeline to http.Handler with the given host
// fallthrough. Dispatch errors are logged and answered with a JSON 500
// unless the response was already committed.
func (p *ManagedPipeline) Handler(host http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrapResponseWriter(w)
		if err := p.Dispatch(rw, r, host); err != nil {
			p.log.Error("dispatch failed",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			if !rw.Committed() {
				errors.ErrInternalServer.WriteJSON(rw)
			}
		}
	})
}
