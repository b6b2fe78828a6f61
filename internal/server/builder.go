// Package server hosts a managed dispatch pipeline behind an HTTP
// listener, with an admin endpoint and config-driven hot reload.
package server

import (
	"fmt"

	"github.com/example/dispatch/internal/config"
	"github.com/example/dispatch/internal/metrics"
	"github.com/example/dispatch/internal/pipeline"
	"github.com/example/dispatch/internal/registry"
)

// BuildPipeline assembles a managed pipeline from configuration. Pattern
// compilation errors and duplicate servlet mappings fail here; binding
// resolution and scope checks fail at pipeline init.
func BuildPipeline(cfg *config.Config, reg *registry.Registry, collector *metrics.Collector) (*pipeline.ManagedPipeline, error) {
	ctx := &pipeline.ServletContext{
		Name:        cfg.Context.Name,
		ContextPath: cfg.Context.Path,
	}

	filters := make([]*pipeline.FilterDefinition, 0, len(cfg.Filters))
	for _, fc := range cfg.Filters {
		m, err := fc.CompileFilterPattern()
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", fc.Binding, err)
		}
		filters = append(filters, pipeline.NewFilterDefinition(fc.Binding, m, fc.InitParams))
	}

	servlets := make([]*pipeline.ServletDefinition, 0, len(cfg.Servlets))
	for _, sc := range cfg.Servlets {
		m, err := sc.CompileServletPattern()
		if err != nil {
			return nil, fmt.Errorf("servlet %q: %w", sc.Binding, err)
		}
		servlets = append(servlets, pipeline.NewServletDefinition(sc.Binding, m, sc.InitParams))
	}

	return pipeline.NewManagedPipeline(ctx, reg, filters, servlets, collector)
}
