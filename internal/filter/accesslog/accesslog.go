// Package accesslog provides the built-in access logging filter. It tags
// each request with a request id, proceeds down the chain, and writes one
// structured log line when the request completes.
package accesslog

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/dispatch/internal/logging"
	"github.com/example/dispatch/internal/pipeline"
	"github.com/example/dispatch/internal/scope"
)

// DefaultHeader carries the request id back to the client.
const DefaultHeader = "X-Request-ID"

// Filter is the access log filter. Bind it as a singleton under any number
// of patterns; it initializes once.
type Filter struct {
	log    *zap.Logger
	header string
}

// New creates an access log filter.
func New() *Filter {
	return &Filter{}
}

// Init implements pipeline.Filter. The "header" init param overrides the
// request id header name.
func (f *Filter) Init(cfg *pipeline.FilterConfig) error {
	f.log = logging.Named("accesslog")
	f.header = cfg.InitParam("header", DefaultHeader)
	return nil
}

// DoFilter implements pipeline.Filter.
func (f *Filter) DoFilter(w http.ResponseWriter, r *http.Request, chain pipeline.Chain) error {
	start := time.Now()

	id := r.Header.Get(f.header)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(f.header, id)
	if rc := scope.FromRequest(r); rc != nil {
		rc.Attributes().Set(scope.AttrRequestID, id)
	}

	err := chain.DoFilter(w, r)

	fields := []zap.Field{
		zap.String("request_id", id),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote", r.RemoteAddr),
		zap.Duration("duration", time.Since(start)),
	}
	if sc, ok := w.(interface{ StatusCode() int }); ok {
		fields = append(fields, zap.Int("status", sc.StatusCode()))
	}
	if err != nil {
		f.log.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		f.log.Info("request", fields...)
	}
	return err
}

// Destroy implements pipeline.Filter.
func (f *Filter) Destroy() {
	if f.log != nil {
		f.log.Sync()
	}
}

// RequestID returns the id assigned to the request, or "".
func RequestID(r *http.Request) string {
	if rc := scope.FromRequest(r); rc != nil {
		if id, ok := rc.Attributes().Get(scope.AttrRequestID).(string); ok {
			return id
		}
	}
	return ""
}
