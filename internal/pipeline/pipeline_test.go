package pipeline

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/pattern"
	"github.com/example/dispatch/internal/registry"
)

// recordingFilter counts lifecycle callbacks and appends its name to a
// shared trace when invoked.
type recordingFilter struct {
	name     string
	inits    int
	destroys int
	trace    *[]string
	behave   func(w http.ResponseWriter, r *http.Request, chain Chain) error
}

func (f *recordingFilter) Init(cfg *FilterConfig) error {
	f.inits++
	return nil
}

func (f *recordingFilter) DoFilter(w http.ResponseWriter, r *http.Request, chain Chain) error {
	if f.trace != nil {
		*f.trace = append(*f.trace, f.name)
	}
	if f.behave != nil {
		return f.behave(w, r, chain)
	}
	return chain.DoFilter(w, r)
}

func (f *recordingFilter) Destroy() {
	f.destroys++
}

// recordingServlet mirrors recordingFilter for terminal dispatch.
type recordingServlet struct {
	name     string
	inits    int
	destroys int
	trace    *[]string
	behave   func(w http.ResponseWriter, r *http.Request) error
}

func (s *recordingServlet) Init(cfg *ServletConfig) error {
	s.inits++
	return nil
}

func (s *recordingServlet) Service(w http.ResponseWriter, r *http.Request) error {
	if s.trace != nil {
		*s.trace = append(*s.trace, s.name)
	}
	if s.behave != nil {
		return s.behave(w, r)
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *recordingServlet) Destroy() {
	s.destroys++
}

func mustMatcher(t *testing.T, p string) pattern.Matcher {
	t.Helper()
	m, err := pattern.Compile(p)
	if err != nil {
		t.Fatalf("Compile(%q): %v", p, err)
	}
	return m
}

// buildPipeline wires filters and servlets into a managed pipeline over a
// fresh registry. Keys double as binding keys.
func buildPipeline(t *testing.T, filters map[string]*recordingFilter, filterOrder [][2]string, servlets map[string]*recordingServlet, servletOrder [][2]string) *ManagedPipeline {
	t.Helper()
	reg := registry.New()
	for key, f := range filters {
		if err := reg.ProvideInstance(key, Filter(f)); err != nil {
			t.Fatalf("Provide %s: %v", key, err)
		}
	}
	for key, s := range servlets {
		if err := reg.ProvideInstance(key, Servlet(s)); err != nil {
			t.Fatalf("Provide %s: %v", key, err)
		}
	}

	var fdefs []*FilterDefinition
	for _, kp := range filterOrder {
		fdefs = append(fdefs, NewFilterDefinition(kp[0], mustMatcher(t, kp[1]), nil))
	}
	var sdefs []*ServletDefinition
	for _, kp := range servletOrder {
		sdefs = append(sdefs, NewServletDefinition(kp[0], mustMatcher(t, kp[1]), nil))
	}

	p, err := NewManagedPipeline(nil, reg, fdefs, sdefs, nil)
	if err != nil {
		t.Fatalf("NewManagedPipeline: %v", err)
	}
	return p
}

func TestLazyInitOnFirstDispatch(t *testing.T) {
	f := &recordingFilter{name: "f"}
	p := buildPipeline(t,
		map[string]*recordingFilter{"f": f}, [][2]string{{"f", "/*"}},
		nil, nil)

	if f.inits != 0 {
		t.Fatal("init must not run before the first dispatch")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	if err := p.Dispatch(rr, req, nil); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if f.inits != 1 {
		t.Errorf("inits = %d, want 1", f.inits)
	}
}

func TestInitPipelineOnceUnderConcurrency(t *testing.T) {
	f := &recordingFilter{name: "f"}
	p := buildPipeline(t,
		map[string]*recordingFilter{"f": f}, [][2]string{{"f", "/*"}},
		nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/x", nil)
			p.Dispatch(rr, req, nil)
		}()
	}
	wg.Wait()

	if f.inits != 1 {
		t.Errorf("inits = %d under concurrent first dispatch, want 1", f.inits)
	}
}

func TestInitIdempotentForAliasedInstance(t *testing.T) {
	// One filter instance bound under two patterns through the same key.
	f := &recordingFilter{name: "shared"}
	p := buildPipeline(t,
		map[string]*recordingFilter{"shared": f},
		[][2]string{{"shared", "/a/*"}, {"shared", "/b/*"}},
		nil, nil)

	if err := p.InitPipeline(); err != nil {
		t.Fatalf("InitPipeline: %v", err)
	}
	if f.inits != 1 {
		t.Errorf("inits = %d for aliased instance, want 1", f.inits)
	}

	p.DestroyPipeline()
	if f.destroys != 1 {
		t.Errorf("destroys = %d for aliased instance, want 1", f.destroys)
	}
}

func TestNonSingletonFilterFailsInit(t *testing.T) {
	reg := registry.New()
	reg.Provide("proto", registry.Prototype, func() (any, error) {
		return Filter(&recordingFilter{name: "proto"}), nil
	})

	p, err := NewManagedPipeline(nil, reg,
		[]*FilterDefinition{NewFilterDefinition("proto", mustMatcher(t, "/*"), nil)},
		nil, nil)
	if err != nil {
		t.Fatalf("NewManagedPipeline: %v", err)
	}

	err = p.InitPipeline()
	ce, ok := errors.IsConfigError(err)
	if !ok {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Key != "proto" {
		t.Errorf("error should name the offending binding, got %q", ce.Key)
	}

	// The error is sticky: later dispatches fail the same way.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	if err := p.Dispatch(rr, req, nil); err == nil {
		t.Error("dispatch after failed init should fail")
	}
}

func TestDuplicateServletPatternRejected(t *testing.T) {
	reg := registry.New()
	reg.ProvideInstance("s1", Servlet(&recordingServlet{name: "s1"}))
	reg.ProvideInstance("s2", Servlet(&recordingServlet{name: "s2"}))

	_, err := NewManagedPipeline(nil, reg, nil, []*ServletDefinition{
		NewServletDefinition("s1", mustMatcher(t, "/dup"), nil),
		NewServletDefinition("s2", mustMatcher(t, "/dup"), nil),
	}, nil)

	if _, ok := errors.IsConfigError(err); !ok {
		t.Fatalf("duplicate servlet pattern must fail at construction, got %v", err)
	}
}

func TestDestroyOrderAndIdempotence(t *testing.T) {
	var trace []string
	f := &recordingFilter{name: "f", trace: &trace}
	s := &recordingServlet{name: "s", trace: &trace}

	reg := registry.New()
	reg.ProvideInstance("f", Filter(f))
	reg.ProvideInstance("s", Servlet(s))

	p, err := NewManagedPipeline(nil, reg,
		[]*FilterDefinition{NewFilterDefinition("f", mustMatcher(t, "/*"), nil)},
		[]*ServletDefinition{NewServletDefinition("s", mustMatcher(t, "/*"), nil)},
		nil)
	if err != nil {
		t.Fatalf("NewManagedPipeline: %v", err)
	}
	if err := p.InitPipeline(); err != nil {
		t.Fatalf("InitPipeline: %v", err)
	}

	p.DestroyPipeline()
	p.DestroyPipeline() // tolerated

	if f.destroys != 1 || s.destroys != 1 {
		t.Errorf("destroys = filter %d, servlet %d; want 1 and 1", f.destroys, s.destroys)
	}
}

func TestDispatchErrorWrappedOnce(t *testing.T) {
	boom := fmt.Errorf("servlet exploded")

	f1 := &recordingFilter{name: "f1"}
	f2 := &recordingFilter{name: "f2"}
	s := &recordingServlet{name: "s", behave: func(w http.ResponseWriter, r *http.Request) error {
		return boom
	}}

	reg := registry.New()
	reg.ProvideInstance("f1", Filter(f1))
	reg.ProvideInstance("f2", Filter(f2))
	reg.ProvideInstance("s", Servlet(s))

	p, _ := NewManagedPipeline(nil, reg,
		[]*FilterDefinition{
			NewFilterDefinition("f1", mustMatcher(t, "/*"), nil),
			NewFilterDefinition("f2", mustMatcher(t, "/*"), nil),
		},
		[]*ServletDefinition{NewServletDefinition("s", mustMatcher(t, "/*"), nil)},
		nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/x", nil)
	err := p.Dispatch(rr, req, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	// The original error category is observable through the chain.
	if !stderrors.Is(err, boom) {
		t.Error("underlying error must propagate unmodified in category")
	}

	// Exactly one DispatchError layer even though the error passed back
	// through two filter frames.
	layers := 0
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if _, ok := e.(*errors.DispatchError); ok {
			layers++
		}
	}
	if layers != 1 {
		t.Errorf("DispatchError layers = %d, want 1", layers)
	}
}
