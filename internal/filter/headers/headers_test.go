package headers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/dispatch/internal/pipeline"
)

type nopChain struct{}

func (nopChain) DoFilter(w http.ResponseWriter, r *http.Request) error { return nil }

func TestHeadersApplied(t *testing.T) {
	f := New()
	err := f.Init(&pipeline.FilterConfig{
		Name: "headers",
		InitParams: map[string]string{
			"X-Served-By":   "dispatch",
			"Cache-Control": "no-store",
		},
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	if err := f.DoFilter(rr, req, nopChain{}); err != nil {
		t.Fatalf("DoFilter: %v", err)
	}

	if rr.Header().Get("X-Served-By") != "dispatch" {
		t.Error("X-Served-By not set")
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Error("Cache-Control not set")
	}
}

func TestHeadersEmptyParams(t *testing.T) {
	f := New()
	if err := f.Init(&pipeline.FilterConfig{Name: "headers"}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	if err := f.DoFilter(rr, req, nopChain{}); err != nil {
		t.Fatalf("DoFilter: %v", err)
	}
}
