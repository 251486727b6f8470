package main

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/mattjoyce/tspl-agent/internal/api"
	"github.com/mattjoyce/tspl-agent/internal/config"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	// Drain concurrently so large output cannot block the pipe.
	stdoutCh := make(chan []byte, 1)
	stderrCh := make(chan []byte, 1)
	go func() { b, _ := io.ReadAll(stdoutR); stdoutCh <- b }()
	go func() { b, _ := io.ReadAll(stderrR); stderrCh <- b }()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes := <-stdoutCh
	stderrBytes := <-stderrCh
	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func setVersionMetadataForTest(t *testing.T, v, commit, built string) {
	t.Helper()

	origVersion := version
	origCommit := gitCommit
	origBuildDate := buildDate

	version = v
	gitCommit = commit
	buildDate = built

	t.Cleanup(func() {
		version = origVersion
		gitCommit = origCommit
		buildDate = origBuildDate
	})
}

// isolateEnv points every setting the CLI reads at test-owned values.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("SPOOL_DIR", filepath.Join(t.TempDir(), "spool"))
	t.Setenv("LISTEN_HOST", "127.0.0.1")
	t.Setenv("PORT", "9317")
	t.Setenv("API_TOKEN", "")
	t.Setenv("PRINTER_NAME", "Label_Printer")
	t.Setenv("PRINT_STRATEGIES", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "text")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

func TestRunVersionJSON(t *testing.T) {
	setVersionMetadataForTest(t, "1.4.0", "0123456789abcdef0123", "2026-03-01T10:20:30+02:00")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "--json"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	var info versionInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if info.Version != "1.4.0" {
		t.Errorf("version = %q", info.Version)
	}
	if info.Commit != "0123456789ab" {
		t.Errorf("commit = %q, want shortened", info.Commit)
	}
	if info.BuildTime != "2026-03-01T08:20:30Z" {
		t.Errorf("build_time = %q, want UTC", info.BuildTime)
	}
}

func TestRunVersionText(t *testing.T) {
	setVersionMetadataForTest(t, "1.4.0", "abc", "unknown")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"--version"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, "tspl-agent 1.4.0") || !strings.Contains(stdout, "commit: abc") {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestRunVersionRejectsArgs(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"version", "extra"})
	})
	if code != 1 || !strings.Contains(stderr, "Usage") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestRunHelpAndUnknown(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"help"})
	})
	if code != 0 || !strings.Contains(stdout, "Commands:") {
		t.Fatalf("help: code=%d stdout=%q", code, stdout)
	}

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"frobnicate"})
	})
	if code != 1 || !strings.Contains(stderr, "Unknown command: frobnicate") {
		t.Fatalf("unknown: code=%d stderr=%q", code, stderr)
	}
}

func TestRunDoctorJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a POSIX lpr stub on PATH")
	}
	isolateEnv(t)
	bin := t.TempDir()
	if err := os.WriteFile(filepath.Join(bin, "lpr"), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", bin)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"doctor", "--json"})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stdout=%s stderr=%s", code, stdout, stderr)
	}
	var report struct {
		Valid   bool     `json:"valid"`
		Printer string   `json:"printer"`
		Chain   []string `json:"chain"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if !report.Valid || report.Printer != "Label_Printer" || strings.Join(report.Chain, ",") != "lpr" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunDoctorReportsInvalidConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("PORT", "70000")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"doctor"})
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout, "ERROR [config]") {
		t.Fatalf("expected config error in report:\n%s", stdout)
	}
}

func TestRunStatus(t *testing.T) {
	isolateEnv(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(api.HealthResponse{
			OK: true, Printer: "Label_Printer", Platform: "posix", Strategies: []string{"lpr"},
		})
	}))
	defer ts.Close()

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"status", "--url", ts.URL})
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr)
	}
	if !strings.Contains(stdout, "Label_Printer") || !strings.Contains(stdout, ts.URL) {
		t.Fatalf("unexpected status output:\n%s", stdout)
	}
}

func TestRunStatusUnreachable(t *testing.T) {
	isolateEnv(t)
	url := "http://127.0.0.1:" + strconv.Itoa(freePort(t))

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"status", "--url", url})
	})
	if code != 1 || !strings.Contains(stderr, "not reachable") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestRunServeInvalidConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("LOG_LEVEL", "loud")

	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"serve"})
	})
	if code != 1 || !strings.Contains(stderr, "Failed to load config") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

func TestRunServeBindFailure(t *testing.T) {
	isolateEnv(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	t.Setenv("PORT", strconv.Itoa(busy.Addr().(*net.TCPAddr).Port))

	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"serve"})
	})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1 on bind failure", code)
	}
}

func TestRunServiceUsage(t *testing.T) {
	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runCLI([]string{"service"})
	})
	if code != 1 || !strings.Contains(stdout, "install") {
		t.Fatalf("code=%d stdout=%q", code, stdout)
	}
}

func TestLocalURL(t *testing.T) {
	cfg := config.Defaults()
	if got := localURL(cfg); got != "http://127.0.0.1:9317" {
		t.Fatalf("localURL = %q", got)
	}
	cfg.Server.Host = "::1"
	cfg.Server.Port = 8080
	if got := localURL(cfg); got != "http://[::1]:8080" {
		t.Fatalf("localURL = %q", got)
	}
}
