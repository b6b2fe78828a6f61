package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/example/dispatch/internal/errors"
)

func TestProvideAndResolve(t *testing.T) {
	r := New()
	if err := r.Provide("svc", Singleton, func() (any, error) { return "hello", nil }); err != nil {
		t.Fatalf("Provide: %v", err)
	}

	v, err := r.Resolve("svc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != "hello" {
		t.Errorf("Resolve = %v", v)
	}
}

func TestDuplicateBinding(t *testing.T) {
	r := New()
	r.Provide("svc", Singleton, func() (any, error) { return 1, nil })
	err := r.Provide("svc", Singleton, func() (any, error) { return 2, nil })
	if _, ok := errors.IsConfigError(err); !ok {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestSingletonMemoized(t *testing.T) {
	r := New()
	calls := 0
	r.Provide("svc", Singleton, func() (any, error) {
		calls++
		return &struct{}{}, nil
	})

	a, _ := r.Resolve("svc")
	b, _ := r.Resolve("svc")
	if a != b {
		t.Error("singleton should resolve to the same instance")
	}
	if calls != 1 {
		t.Errorf("provider ran %d times, want 1", calls)
	}
}

func TestPrototypeFreshInstances(t *testing.T) {
	r := New()
	r.Provide("svc", Prototype, func() (any, error) { return &struct{}{}, nil })

	a, _ := r.Resolve("svc")
	b, _ := r.Resolve("svc")
	if a == b {
		t.Error("prototype should resolve to fresh instances")
	}
}

func TestResolveSingletonRejectsPrototype(t *testing.T) {
	r := New()
	r.Provide("proto", Prototype, func() (any, error) { return 1, nil })

	_, err := r.ResolveSingleton("proto")
	ce, ok := errors.IsConfigError(err)
	if !ok {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Key != "proto" {
		t.Errorf("error should name the offending key, got %q", ce.Key)
	}
}

func TestResolveUnknownKey(t *testing.T) {
	r := New()
	if _, err := r.Resolve("ghost"); err == nil {
		t.Error("expected error for unknown key")
	}
	if _, err := r.ResolveSingleton("ghost"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestProviderError(t *testing.T) {
	r := New()
	boom := fmt.Errorf("boom")
	calls := 0
	r.Provide("bad", Singleton, func() (any, error) {
		calls++
		return nil, boom
	})

	if _, err := r.Resolve("bad"); err != boom {
		t.Errorf("Resolve err = %v, want boom", err)
	}
	// Errors are memoized for singletons too.
	r.Resolve("bad")
	if calls != 1 {
		t.Errorf("provider ran %d times, want 1", calls)
	}
}

func TestProviderPanic(t *testing.T) {
	r := New()
	r.Provide("explodes", Singleton, func() (any, error) { panic("kaboom") })

	_, err := r.Resolve("explodes")
	if _, ok := errors.IsConfigError(err); !ok {
		t.Fatalf("panic should surface as ConfigError, got %v", err)
	}
}

func TestConcurrentSingletonResolve(t *testing.T) {
	r := New()
	calls := 0
	r.Provide("svc", Singleton, func() (any, error) {
		calls++
		return &struct{}{}, nil
	})

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Resolve("svc")
		}(i)
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("provider ran %d times under contention, want 1", calls)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent resolves returned different instances")
		}
	}
}
