// Package headers provides a filter that stamps configured static headers
// onto every matching response. Its init params are the headers to set.
package headers

import (
	"net/http"

	"github.com/example/dispatch/internal/pipeline"
)

// Filter sets its init params as response headers before proceeding.
type Filter struct {
	headers map[string]string
}

// New creates a headers filter.
func New() *Filter {
	return &Filter{}
}

// Init implements pipeline.Filter.
func (f *Filter) Init(cfg *pipeline.FilterConfig) error {
	f.headers = make(map[string]string, len(cfg.InitParams))
	for k, v := range cfg.InitParams {
		f.headers[k] = v
	}
	return nil
}

// DoFilter implements pipeline.Filter. Headers are set before the chain
// proceeds so a terminal servlet can still override them.
func (f *Filter) DoFilter(w http.ResponseWriter, r *http.Request, chain pipeline.Chain) error {
	h := w.Header()
	for k, v := range f.headers {
		h.Set(k, v)
	}
	return chain.DoFilter(w, r)
}

// Destroy implements pipeline.Filter.
func (f *Filter) Destroy() {}
