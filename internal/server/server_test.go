package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/dispatch/internal/config"
	"github.com/example/dispatch/internal/pipeline"
	"github.com/example/dispatch/internal/registry"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Filters = []config.FilterConfig{
		{Binding: "mark", Pattern: "/*"},
	}
	cfg.Servlets = []config.ServletConfig{
		{Binding: "pong", Pattern: "/ping"},
	}
	return cfg
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	reg.ProvideInstance("mark", pipeline.FilterHandler(
		func(w http.ResponseWriter, r *http.Request, chain pipeline.Chain) error {
			w.Header().Set("X-Marked", "1")
			return chain.DoFilter(w, r)
		}))
	reg.ProvideInstance("pong", pipeline.ServletHandler(
		func(w http.ResponseWriter, r *http.Request) error {
			w.Write([]byte("pong"))
			return nil
		}))
	return reg
}

func TestServeThroughPipeline(t *testing.T) {
	s, err := New(testConfig(), "", testRegistry(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rr := httptest.NewRecorder()
	s.serve(rr, httptest.NewRequest("GET", "/ping", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "pong" {
		t.Errorf("status %d body %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Marked") != "1" {
		t.Error("filter did not run")
	}
}

func TestServeFallthrough404(t *testing.T) {
	s, err := New(testConfig(), "", testRegistry(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rr := httptest.NewRecorder()
	s.serve(rr, httptest.NewRequest("GET", "/nothing", nil))

	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("fallthrough body is not JSON: %v", err)
	}
}

func TestSessionAttached(t *testing.T) {
	cfg := testConfig()
	cfg.Session.Enabled = true

	s, err := New(cfg, "", testRegistry(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rr := httptest.NewRecorder()
	s.serve(rr, httptest.NewRequest("GET", "/ping", nil))

	if len(rr.Result().Cookies()) == 0 {
		t.Error("expected a session cookie")
	}
	if s.Sessions().Len() != 1 {
		t.Errorf("sessions = %d, want 1", s.Sessions().Len())
	}
}

func TestReloadSwapsPipeline(t *testing.T) {
	reg := testRegistry(t)
	reg.ProvideInstance("pong2", pipeline.ServletHandler(
		func(w http.ResponseWriter, r *http.Request) error {
			w.Write([]byte("pong2"))
			return nil
		}))

	s, err := New(testConfig(), "", reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	newCfg := testConfig()
	newCfg.Servlets = []config.ServletConfig{
		{Binding: "pong2", Pattern: "/ping"},
	}
	result := s.Reload(newCfg)
	if !result.Success {
		t.Fatalf("Reload failed: %s", result.Error)
	}

	rr := httptest.NewRecorder()
	s.serve(rr, httptest.NewRequest("GET", "/ping", nil))
	if rr.Body.String() != "pong2" {
		t.Errorf("body = %q, want pong2 after reload", rr.Body.String())
	}
}

func TestReloadKeepsPipelineOnBadConfig(t *testing.T) {
	s, err := New(testConfig(), "", testRegistry(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bad := testConfig()
	bad.Servlets = []config.ServletConfig{
		{Binding: "a", Pattern: "/dup"},
		{Binding: "a", Pattern: "/dup"},
	}
	result := s.Reload(bad)
	if result.Success {
		t.Fatal("reload with duplicate servlet patterns must fail")
	}

	// The old pipeline keeps serving.
	rr := httptest.NewRecorder()
	s.serve(rr, httptest.NewRequest("GET", "/ping", nil))
	if rr.Body.String() != "pong" {
		t.Errorf("body = %q, old pipeline should still serve", rr.Body.String())
	}
}

func TestAdminEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.Admin.Enabled = true

	s, err := New(cfg, "", testRegistry(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	admin := s.adminHandler()

	for _, path := range []string{"/healthz", "/pipeline", "/metrics", "/reloads"} {
		rr := httptest.NewRecorder()
		admin.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	admin.ServeHTTP(rr, httptest.NewRequest("GET", "/pipeline", nil))
	var out struct {
		Filters  []map[string]string `json:"filters"`
		Servlets []map[string]string `json:"servlets"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("pipeline inspection is not JSON: %v", err)
	}
	if len(out.Filters) != 1 || len(out.Servlets) != 1 {
		t.Errorf("inspection = %+v", out)
	}
}
