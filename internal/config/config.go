// Package config defines and loads the pipeline deployment configuration.
package config

// Config is the root configuration for a pipeline deployment.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Admin    AdminConfig     `yaml:"admin"`
	Logging  LoggingConfig   `yaml:"logging"`
	Context  ContextConfig   `yaml:"context"`
	Session  SessionConfig   `yaml:"session"`
	Filters  []FilterConfig  `yaml:"filters"`
	Servlets []ServletConfig `yaml:"servlets"`
}

// ServerConfig configures the main HTTP listener.
type ServerConfig struct {
	Address         string `yaml:"address"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// AdminConfig configures the admin listener (health, metrics, inspection).
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// ContextConfig describes the deployment context.
type ContextConfig struct {
	Name string `yaml:"name"`
	// Path is the context path prefix stripped from request URIs before
	// pattern matching.
	Path string `yaml:"path"`
}

// SessionConfig configures the in-memory session store.
type SessionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Cookie   string `yaml:"cookie"`
	Capacity int    `yaml:"capacity"`
}

// FilterConfig maps a filter binding to a URI pattern.
type FilterConfig struct {
	// Binding is the registry key the filter instance is resolved from.
	Binding string `yaml:"binding"`
	// Pattern is a servlet-style pattern unless Regex is true.
	Pattern string `yaml:"pattern"`
	Regex   bool   `yaml:"regex"`
	// InitParams are handed to the filter's Init callback.
	InitParams map[string]string `yaml:"init_params"`
}

// ServletConfig maps a servlet binding to a URI pattern.
type ServletConfig struct {
	Binding    string            `yaml:"binding"`
	Pattern    string            `yaml:"pattern"`
	Regex      bool              `yaml:"regex"`
	InitParams map[string]string `yaml:"init_params"`
}

// DefaultConfig returns a config with sane defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     "30s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Admin: AdminConfig{
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
