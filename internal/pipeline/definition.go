package pipeline

import (
	"fmt"
	"strings"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/pattern"
	"github.com/example/dispatch/internal/registry"
)

// FilterDefinition binds one filter to one URI pattern. Identity (key,
// matcher, init params) is fixed at configuration time; the instance is
// resolved lazily, exactly once, during pipeline init and must come from a
// singleton binding.
type FilterDefinition struct {
	key        string
	matcher    pattern.Matcher
	initParams map[string]string

	instance Filter // set at most once, by Init
}

// NewFilterDefinition creates a definition for the given binding key and
// compiled matcher.
func NewFilterDefinition(key string, m pattern.Matcher, initParams map[string]string) *FilterDefinition {
	return &FilterDefinition{key: key, matcher: m, initParams: initParams}
}

// Key returns the binding key.
func (fd *FilterDefinition) Key() string { return fd.key }

// Pattern returns the textual URI pattern.
func (fd *FilterDefinition) Pattern() string { return fd.matcher.Pattern() }

// Init resolves the filter instance and runs its Init callback. The
// callback fires only the first time the resolved instance is seen in
// initialized, so a filter bound under several patterns initializes once.
func (fd *FilterDefinition) Init(ctx *ServletContext, reg *registry.Registry, initialized map[any]bool) error {
	v, err := reg.ResolveSingleton(fd.key)
	if err != nil {
		return err
	}
	f, ok := v.(Filter)
	if !ok {
		return errors.NewConfigError("filter", fd.key,
			fmt.Sprintf("binding resolved to %T, which is not a filter", v))
	}
	fd.instance = f

	if initialized[f] {
		return nil
	}
	initialized[f] = true

	if err := f.Init(&FilterConfig{Name: fd.key, InitParams: fd.initParams, Context: ctx}); err != nil {
		return errors.WrapConfig(err, "filter", fd.key, "init failed")
	}
	return nil
}

// Destroy runs the filter's Destroy callback at most once per distinct
// instance, tracked by destroyed. Definitions whose instance was never
// resolved are skipped.
func (fd *FilterDefinition) Destroy(destroyed map[any]bool) {
	if fd.instance == nil || destroyed[fd.instance] {
		return
	}
	destroyed[fd.instance] = true
	fd.instance.Destroy()
}

// GetIfMatching returns the resolved filter when the context-relative path
// matches this definition's pattern, or nil when it does not apply.
func (fd *FilterDefinition) GetIfMatching(path string) Filter {
	if fd.instance == nil || !fd.matcher.Matches(path) {
		return nil
	}
	return fd.instance
}

// ServletDefinition binds one servlet to one URI pattern. It mirrors
// FilterDefinition but governs terminal dispatch.
type ServletDefinition struct {
	key        string
	matcher    pattern.Matcher
	initParams map[string]string

	instance Servlet
}

// NewServletDefinition creates a definition for the given binding key and
// compiled matcher.
func NewServletDefinition(key string, m pattern.Matcher, initParams map[string]string) *ServletDefinition {
	return &ServletDefinition{key: key, matcher: m, initParams: initParams}
}

// Key returns the binding key.
func (sd *ServletDefinition) Key() string { return sd.key }

// Pattern returns the textual URI pattern.
func (sd *ServletDefinition) Pattern() string { return sd.matcher.Pattern() }

// Init resolves the servlet instance and runs its Init callback, once per
// distinct instance per init pass.
func (sd *ServletDefinition) Init(ctx *ServletContext, reg *registry.Registry, initialized map[any]bool) error {
	v, err := reg.ResolveSingleton(sd.key)
	if err != nil {
		return err
	}
	s, ok := v.(Servlet)
	if !ok {
		return errors.NewConfigError("servlet", sd.key,
			fmt.Sprintf("binding resolved to %T, which is not a servlet", v))
	}
	sd.instance = s

	if initialized[s] {
		return nil
	}
	initialized[s] = true

	if err := s.Init(&ServletConfig{Name: sd.key, InitParams: sd.initParams, Context: ctx}); err != nil {
		return errors.WrapConfig(err, "servlet", sd.key, "init failed")
	}
	return nil
}

// Destroy runs the servlet's Destroy callback at most once per distinct
// instance, skipping never-resolved definitions.
func (sd *ServletDefinition) Destroy(destroyed map[any]bool) {
	if sd.instance == nil || destroyed[sd.instance] {
		return
	}
	destroyed[sd.instance] = true
	sd.instance.Destroy()
}

// GetIfMatching returns the resolved servlet when the context-relative path
// matches, or nil.
func (sd *ServletDefinition) GetIfMatching(path string) Servlet {
	if sd.instance == nil || !sd.matcher.Matches(path) {
		return nil
	}
	return sd.instance
}

// servletPath computes the memoizable servlet path for a matched request.
func (sd *ServletDefinition) servletPath(path string) string {
	if p := sd.matcher.ExtractPath(path); p != "" {
		return p
	}
	return path
}

// pathInfo is the remainder of the path after the servlet path, or "".
func (sd *ServletDefinition) pathInfo(path, servletPath string) string {
	if servletPath == "" || !strings.HasPrefix(path, servletPath) {
		return ""
	}
	return path[len(servletPath):]
}
