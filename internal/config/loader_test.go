package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "TANCA_Label", cfg.Printer.Name)
	assert.Equal(t, 9317, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9317", cfg.ListenAddr())
	assert.Equal(t, []string{"http://localhost", "http://127.0.0.1"}, cfg.CORS.AllowedOrigins)
	assert.False(t, cfg.AuthRequired())
	assert.Equal(t, int64(256*1024), cfg.Server.MaxBodyBytes)
	assert.Empty(t, cfg.SourceFile)
}

func TestLoadWith_Env(t *testing.T) {
	cfg, err := LoadWith("", envMap(map[string]string{
		"PRINTER_NAME":     "  Zebra_ZD220 ",
		"PORT":             "9400",
		"API_TOKEN":        " s3cret-token ",
		"ALLOWED_ORIGINS":  "http://pos.local, https://shop.example.com ,,",
		"DISPATCH_TIMEOUT": "45",
		"SHUTDOWN_TIMEOUT": "5s",
		"PRINT_STRATEGIES": "powershell,copy",
		"PRINT_RATE_LIMIT": "0",
		"LOG_LEVEL":        "DEBUG",
	}))
	require.NoError(t, err)

	assert.Equal(t, "Zebra_ZD220", cfg.Printer.Name)
	assert.Equal(t, 9400, cfg.Server.Port)
	assert.Equal(t, "s3cret-token", cfg.Auth.Token)
	assert.True(t, cfg.AuthRequired())
	assert.Equal(t, []string{"http://pos.local", "https://shop.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.Printer.DispatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"powershell", "copy"}, cfg.Printer.Strategies)
	assert.Zero(t, cfg.Server.RateLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestListenAddr_IPv6Host(t *testing.T) {
	cfg, err := LoadWith("", envMap(map[string]string{"LISTEN_HOST": "::1", "PORT": "19317"}))
	require.NoError(t, err)
	assert.Equal(t, "[::1]:19317", cfg.ListenAddr())

	cfg.Server.Port = 0
	l, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		// Hosts without IPv6 loopback still must not reject the address form.
		require.NotContains(t, err.Error(), "too many colons")
		t.Skipf("IPv6 loopback unavailable: %v", err)
	}
	_ = l.Close()

	cfg.Server.Host = "::"
	cfg.Server.Port = 9317
	assert.Equal(t, "[::]:9317", cfg.ListenAddr())
}

func TestLoadWith_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
printer:
  name: FilePrinter
  dispatch_timeout: 10s
server:
  port: 9500
auth:
  token: from-file
log:
  level: WARN
  format: text
`)

	cfg, err := LoadWith(path, envMap(map[string]string{"PORT": "9600"}))
	require.NoError(t, err)

	assert.Equal(t, "FilePrinter", cfg.Printer.Name)
	assert.Equal(t, 10*time.Second, cfg.Printer.DispatchTimeout)
	assert.Equal(t, 9600, cfg.Server.Port, "environment overrides the file")
	assert.Equal(t, "from-file", cfg.Auth.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, path, cfg.SourceFile)
}

func TestLoadWith_EmptyTokenEnvDisablesFileToken(t *testing.T) {
	path := writeConfig(t, "auth:\n  token: from-file\n")

	cfg, err := LoadWith(path, envMap(map[string]string{"API_TOKEN": ""}))
	require.NoError(t, err)
	assert.False(t, cfg.AuthRequired())
}

func TestLoadWith_ConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, "printer:\n  name: ViaEnv\n")

	cfg, err := LoadWith("", envMap(map[string]string{EnvConfigPath: path}))
	require.NoError(t, err)
	assert.Equal(t, "ViaEnv", cfg.Printer.Name)
}

func TestLoadWith_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad port", env: map[string]string{"PORT": "http"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "bad timeout", env: map[string]string{"DISPATCH_TIMEOUT": "soon"}},
		{name: "bad origin", env: map[string]string{"ALLOWED_ORIGINS": "localhost"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "bad log format", env: map[string]string{"LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith("", envMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestResolve_SkipsValidation(t *testing.T) {
	env := envMap(map[string]string{"PORT": "70000", "LOG_LEVEL": "loud"})

	_, err := LoadWith("", env)
	require.Error(t, err)

	cfg, err := Resolve("", env)
	require.NoError(t, err)
	assert.Equal(t, 70000, cfg.Server.Port)
	assert.Equal(t, "loud", cfg.Log.Level)
	assert.Error(t, cfg.Validate())
}

func TestLoadWith_MissingFile(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	assert.Error(t, err)
}

func TestValidate_RateBurst(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 5
	cfg.Server.RateBurst = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.RateLimit = 0
	assert.NoError(t, cfg.Validate())
}

func TestTokenHint(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "(no token)", cfg.TokenHint())

	cfg.Auth.Token = "short"
	assert.Equal(t, "****", cfg.TokenHint())

	cfg.Auth.Token = "abcd-long-secret-xyz"
	assert.Equal(t, "abcd…xyz", cfg.TokenHint())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TSPL_AGENT_TEST_DOTENV=from-file\n"), 0o644))

	t.Setenv("TSPL_AGENT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("TSPL_AGENT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("TSPL_AGENT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a , ,b,"))
	assert.Empty(t, SplitList(""))
}
