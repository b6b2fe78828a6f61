// Package servlet ships the built-in servlets bound by the default
// deployment: an echo servlet for smoke testing and a static file servlet.
package servlet

import (
	"encoding/json"
	"net/http"

	"github.com/example/dispatch/internal/pipeline"
)

// Echo answers every request with a JSON reflection of it. Useful for
// verifying pattern mappings and filter behavior.
type Echo struct {
	context *pipeline.ServletContext
}

// NewEcho creates an echo servlet.
func NewEcho() *Echo {
	return &Echo{}
}

// Init implements pipeline.Servlet.
func (e *Echo) Init(cfg *pipeline.ServletConfig) error {
	e.context = cfg.Context
	return nil
}

type echoResponse struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	ServletPath string              `json:"servlet_path"`
	PathInfo    string              `json:"path_info"`
	Query       string              `json:"query,omitempty"`
	Headers     map[string][]string `json:"headers"`
}

// Service implements pipeline.Servlet.
func (e *Echo) Service(w http.ResponseWriter, r *http.Request) error {
	resp := echoResponse{
		Method:      r.Method,
		Path:        r.URL.Path,
		ServletPath: pipeline.ServletPath(r),
		PathInfo:    pipeline.PathInfo(r),
		Query:       r.URL.RawQuery,
		Headers:     r.Header,
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// Destroy implements pipeline.Servlet.
func (e *Echo) Destroy() {}
