package config

import "time"

// Config represents the complete tspl-agent configuration.
type Config struct {
	Printer PrinterConfig `yaml:"printer"`
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	CORS    CORSConfig    `yaml:"cors"`
	Spool   SpoolConfig   `yaml:"spool"`
	Log     LogConfig     `yaml:"log"`

	// SourceFile is the YAML file the configuration was read from, if any.
	SourceFile string `yaml:"-"`
}

// PrinterConfig names the target printer and how jobs reach it.
type PrinterConfig struct {
	Name string `yaml:"name"`
	// Strategies overrides the platform's default dispatch chain.
	Strategies []string `yaml:"strategies,omitempty"`
	// DispatchTimeout bounds each external print process. Zero disables it.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// RateLimit is the sustained /print requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// AuthConfig holds the shared secret. An empty token disables authentication.
type AuthConfig struct {
	Token string `yaml:"token"`
}

// CORSConfig lists browser origins allowed to call the agent.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SpoolConfig locates the scratch directory for transient documents.
type SpoolConfig struct {
	Dir        string        `yaml:"dir"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
