package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that points at a YAML config file.
const EnvConfigPath = "TSPL_AGENT_CONFIG"

const (
	defaultPrinter = "TANCA_Label"
	defaultPort    = 9317
	defaultOrigins = "http://localhost,http://127.0.0.1"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Defaults returns the configuration used when nothing else is provided.
func Defaults() *Config {
	return &Config{
		Printer: PrinterConfig{
			Name:            defaultPrinter,
			DispatchTimeout: 2 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            defaultPort,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    256 * 1024,
			RateLimit:       20,
			RateBurst:       40,
		},
		CORS: CORSConfig{
			AllowedOrigins: SplitList(defaultOrigins),
		},
		Spool: SpoolConfig{
			Dir:        filepath.Join(os.TempDir(), "tspl-agent"),
			StaleAfter: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves configuration from defaults, an optional YAML file and the
// process environment, then validates it.
// If configPath is empty, $TSPL_AGENT_CONFIG is consulted.
func Load(configPath string) (*Config, error) {
	return LoadWith(configPath, os.LookupEnv)
}

// LoadWith is Load with an injectable environment.
func LoadWith(configPath string, lookup LookupFunc) (*Config, error) {
	cfg, err := Resolve(configPath, lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Resolve merges defaults, file and environment without validating, so
// tooling can report on a configuration the agent would refuse.
func Resolve(configPath string, lookup LookupFunc) (*Config, error) {
	cfg := Defaults()

	if configPath == "" {
		if v, ok := lookup(EnvConfigPath); ok {
			configPath = strings.TrimSpace(v)
		}
	}

	if configPath != "" {
		if err := loadFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	return cfg, nil
}

func loadFile(cfg *Config, configPath string) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", absPath, err)
	}
	cfg.SourceFile = absPath
	return nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}
		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("PRINTER_NAME"); ok {
		cfg.Printer.Name = v
	}
	if v, ok := get("PRINT_STRATEGIES"); ok {
		cfg.Printer.Strategies = SplitList(v)
	}
	if v, ok := get("DISPATCH_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("DISPATCH_TIMEOUT: %w", err)
		}
		cfg.Printer.DispatchTimeout = d
	}

	if v, ok := get("LISTEN_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := get("PORT"); ok {
		port, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v, ok := get("SHUTDOWN_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}
	if v, ok := get("MAX_BODY_BYTES"); ok {
		n, err := cast.ToInt64E(v)
		if err != nil {
			return fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		cfg.Server.MaxBodyBytes = n
	}
	if v, ok := get("PRINT_RATE_LIMIT"); ok {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("PRINT_RATE_LIMIT: %w", err)
		}
		cfg.Server.RateLimit = f
	}
	if v, ok := get("PRINT_RATE_BURST"); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("PRINT_RATE_BURST: %w", err)
		}
		cfg.Server.RateBurst = n
	}

	// An explicitly empty API_TOKEN disables auth even if the file sets one.
	if v, ok := lookup("API_TOKEN"); ok {
		cfg.Auth.Token = strings.TrimSpace(v)
	}
	if v, ok := get("ALLOWED_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = SplitList(v)
	}

	if v, ok := get("SPOOL_DIR"); ok {
		cfg.Spool.Dir = v
	}
	if v, ok := get("SPOOL_STALE_AFTER"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("SPOOL_STALE_AFTER: %w", err)
		}
		cfg.Spool.StaleAfter = d
	}

	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	return nil
}

// parseDuration accepts Go duration strings; a bare integer means seconds.
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return cast.ToDurationE(v)
}

// SplitList splits a comma-separated list, trimming blanks and dropping empties.
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Printer.Name) == "" {
		return fmt.Errorf("printer name is required")
	}
	for _, s := range c.Printer.Strategies {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("printer strategies must not contain empty names")
		}
	}
	if c.Printer.DispatchTimeout < 0 {
		return fmt.Errorf("dispatch timeout must be non-negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown timeout must be non-negative")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting is enabled")
	}

	for _, origin := range c.CORS.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("allowed origin %q must be an http(s) origin", origin)
		}
	}

	if strings.TrimSpace(c.Spool.Dir) == "" {
		return fmt.Errorf("spool directory is required")
	}
	if c.Spool.StaleAfter < 0 {
		return fmt.Errorf("spool stale_after must be non-negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Log.Format)
	}
	return nil
}

// ListenAddr returns host:port for the HTTP listener. IPv6 hosts are bracketed.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// AuthRequired reports whether a shared token is configured.
func (c *Config) AuthRequired() bool {
	return c.Auth.Token != ""
}

// TokenHint renders the token for logs without revealing it.
func (c *Config) TokenHint() string {
	t := c.Auth.Token
	switch {
	case t == "":
		return "(no token)"
	case len(t) <= 8:
		return "****"
	default:
		return t[:4] + "…" + t[len(t)-3:]
	}
}
