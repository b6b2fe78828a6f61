package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/example/dispatch/internal/errors"
	"github.com/example/dispatch/internal/pattern"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses configuration from YAML bytes. All configuration errors
// (invalid patterns, duplicate servlet mappings, missing bindings) are
// fatal here, before any request is dispatched.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	for _, field := range []struct{ name, val string }{
		{"read_timeout", cfg.Server.ReadTimeout},
		{"write_timeout", cfg.Server.WriteTimeout},
		{"shutdown_timeout", cfg.Server.ShutdownTimeout},
	} {
		if field.val == "" {
			continue
		}
		if _, err := time.ParseDuration(field.val); err != nil {
			return fmt.Errorf("server.%s: invalid duration %q", field.name, field.val)
		}
	}

	if cfg.Context.Path != "" && !strings.HasPrefix(cfg.Context.Path, "/") {
		return fmt.Errorf("context.path must start with /, got %q", cfg.Context.Path)
	}

	for i, fc := range cfg.Filters {
		if fc.Binding == "" {
			return fmt.Errorf("filter %d: binding is required", i)
		}
		if fc.Pattern == "" {
			return fmt.Errorf("filter %q: pattern is required", fc.Binding)
		}
		if _, err := compilePattern(fc.Pattern, fc.Regex); err != nil {
			return err
		}
	}

	seen := make(map[string]string, len(cfg.Servlets))
	for i, sc := range cfg.Servlets {
		if sc.Binding == "" {
			return fmt.Errorf("servlet %d: binding is required", i)
		}
		if sc.Pattern == "" {
			return fmt.Errorf("servlet %q: pattern is required", sc.Binding)
		}
		if _, err := compilePattern(sc.Pattern, sc.Regex); err != nil {
			return err
		}
		if prior, dup := seen[sc.Pattern]; dup {
			return errors.NewConfigError("servlet", sc.Binding,
				fmt.Sprintf("pattern %s already mapped to %s", sc.Pattern, prior))
		}
		seen[sc.Pattern] = sc.Binding
	}

	return nil
}

// compilePattern compiles a configured pattern, servlet-style or regex.
func compilePattern(p string, regex bool) (pattern.Matcher, error) {
	if regex {
		return pattern.CompileRegex(p)
	}
	return pattern.Compile(p)
}

// CompileFilterPattern compiles the matcher for a filter entry.
func (fc FilterConfig) CompileFilterPattern() (pattern.Matcher, error) {
	return compilePattern(fc.Pattern, fc.Regex)
}

// CompileServletPattern compiles the matcher for a servlet entry.
func (sc ServletConfig) CompileServletPattern() (pattern.Matcher, error) {
	return compilePattern(sc.Pattern, sc.Regex)
}

// Duration parses a configured duration with a fallback.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
