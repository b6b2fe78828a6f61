package servlet

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/pipeline"
)

// Static serves files from a configured root directory. The path info of
// the serviced request selects the file, so the servlet works under any
// prefix pattern.
type Static struct {
	root  string
	index string
}

// NewStatic creates a static file servlet.
func NewStatic() *Static {
	return &Static{}
}

// Init implements pipeline.Servlet. The "root" init param is required and
// must name an existing directory; "index" optionally names the file
// served for directory requests.
func (s *Static) Init(cfg *pipeline.ServletConfig) error {
	root := cfg.InitParam("root", "")
	if root == "" {
		return errors.NewConfigError("servlet", cfg.Name, "init param root is required")
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return errors.NewConfigError("servlet", cfg.Name, "root is not a directory: "+root)
	}
	s.root = root
	s.index = cfg.InitParam("index", "index.html")
	return nil
}

// Service implements pipeline.Servlet.
func (s *Static) Service(w http.ResponseWriter, r *http.Request) error {
	rel := pipeline.PathInfo(r)
	if rel == "" {
		rel = r.URL.Path
	}
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = s.index
	}

	// Reject traversal outside the root.
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(filepath.Separator)) && full != filepath.Clean(s.root) {
		http.NotFound(w, r)
		return nil
	}

	if info, err := os.Stat(full); err == nil && info.IsDir() {
		full = filepath.Join(full, s.index)
	}

	http.ServeFile(w, r, full)
	return nil
}

// Destroy implements pipeline.Servlet.
func (s *Static) Destroy() {}
