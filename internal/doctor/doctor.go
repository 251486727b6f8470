// Package doctor checks a tspl-agent configuration and the host it will run
// on: settings, the strategy chain, the executables it shells out to, and
// the spool directory.
package doctor

import (
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mattjoyce/tspl-agent/internal/config"
	"github.com/mattjoyce/tspl-agent/internal/dispatch"
	"github.com/mattjoyce/tspl-agent/internal/spool"
)

// minTokenLength is the shortest token accepted without a warning.
const minTokenLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool     `json:"valid"`
	Printer  string   `json:"printer"`
	Chain    []string `json:"chain"`
	Errors   []Issue  `json:"errors,omitempty"`
	Warnings []Issue  `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the local host.
type Doctor struct {
	cfg      *config.Config
	goos     string
	lookPath   func(string) (string, error)
	checkLocal func(string) error
}

// Option configures a Doctor.
type Option func(*Doctor)

// WithGOOS overrides the platform the checks assume.
func WithGOOS(goos string) Option {
	return func(d *Doctor) { d.goos = goos }
}

// WithLookPath replaces executable resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(d *Doctor) { d.lookPath = fn }
}

// WithSpoolCheck replaces the network filesystem probe for the spool.
func WithSpoolCheck(fn func(string) error) Option {
	return func(d *Doctor) { d.checkLocal = fn }
}

// New creates a Doctor for a loaded config.
func New(cfg *config.Config, opts ...Option) *Doctor {
	d := &Doctor{cfg: cfg, goos: runtime.GOOS, lookPath: exec.LookPath, checkLocal: spool.CheckLocal}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true, Printer: d.cfg.Printer.Name}

	d.validateSettings(r)
	d.validateChain(r)
	d.validateSpool(r)
	d.warnAuth(r)
	d.warnCORS(r)
	d.warnTimeouts(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateSettings(r *Result) {
	if err := d.cfg.Validate(); err != nil {
		d.addError(r, "config", "", err.Error())
	}
}

// validateChain checks strategy names and that their executables resolve.
func (d *Doctor) validateChain(r *Result) {
	names := d.cfg.Printer.Strategies
	field := "printer.strategies"
	if len(names) == 0 {
		names = dispatch.ChainFor(d.goos)
		field = ""
	}
	r.Chain = names

	known := make(map[string]bool)
	for _, k := range dispatch.KnownStrategies() {
		known[k] = true
	}
	for _, n := range names {
		if !known[strings.ToLower(strings.TrimSpace(n))] {
			d.addError(r, "strategies", field, fmt.Sprintf("unknown strategy %q", n))
			return
		}
	}
	// Building the chain also catches duplicates and platform-only strategies.
	if d.goos == runtime.GOOS {
		noop := dispatch.RunnerFunc(func(context.Context, string, ...string) (dispatch.RunResult, error) {
			return dispatch.RunResult{}, nil
		})
		if _, err := dispatch.BuildChain(names, noop); err != nil {
			d.addError(r, "strategies", field, err.Error())
			return
		}
	}

	if dispatch.PlatformFor(d.goos) == dispatch.PlatformPOSIX {
		for _, n := range names {
			if strings.ToLower(strings.TrimSpace(n)) != dispatch.StrategyLPR {
				d.addWarning(r, "strategies", field,
					fmt.Sprintf("strategy %q targets Windows and will fail on %s", n, d.goos))
			}
		}
	}

	for _, cmd := range dispatch.Commands(names) {
		if _, err := d.lookPath(cmd); err != nil {
			d.addError(r, "commands", cmd, fmt.Sprintf("%s not found in PATH", cmd))
		}
	}
}

// validateSpool checks that the scratch directory can hold documents.
func (d *Doctor) validateSpool(r *Result) {
	dir := strings.TrimSpace(d.cfg.Spool.Dir)
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		d.addError(r, "spool", "spool.dir", fmt.Sprintf("cannot create %s: %v", dir, err))
		return
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		d.addError(r, "spool", "spool.dir", fmt.Sprintf("%s is not writable: %v", dir, err))
		return
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	if !filepath.IsAbs(dir) {
		d.addWarning(r, "spool", "spool.dir",
			"relative spool directory depends on the working directory (services start elsewhere)")
	}
	if err := d.checkLocal(dir); errors.Is(err, spool.ErrNetworkFilesystem) {
		d.addWarning(r, "spool", "spool.dir", err.Error())
	}
}

func (d *Doctor) warnAuth(r *Result) {
	token := d.cfg.Auth.Token
	switch {
	case token == "":
		d.addWarning(r, "auth", "auth.token",
			"no token configured: any client that can reach the port may print")
	case len(token) < minTokenLength:
		d.addWarning(r, "auth", "auth.token",
			fmt.Sprintf("token is shorter than %d characters", minTokenLength))
	}
}

func (d *Doctor) warnCORS(r *Result) {
	if len(d.cfg.CORS.AllowedOrigins) == 0 {
		d.addWarning(r, "cors", "cors.allowed_origins",
			"no origins allowed: browser pages cannot call the agent")
	}
	for _, o := range d.cfg.CORS.AllowedOrigins {
		if strings.HasPrefix(o, "http://") && !isLoopbackOrigin(o) {
			d.addWarning(r, "cors", "cors.allowed_origins",
				fmt.Sprintf("origin %s is plain http", o))
		}
	}
}

func (d *Doctor) warnTimeouts(r *Result) {
	if d.cfg.Printer.DispatchTimeout == 0 {
		d.addWarning(r, "dispatch", "printer.dispatch_timeout",
			"dispatch timeout disabled: a hung print command holds its request open indefinitely")
	}
}

func isLoopbackOrigin(o string) bool {
	host := strings.TrimPrefix(o, "http://")
	if i := strings.IndexAny(host, ":/"); i >= 0 {
		host = host[:i]
	}
	return host == "localhost" || host == "127.0.0.1" || host == "[::1]"
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Printer: %s\n", r.Printer)
	fmt.Fprintf(&b, "Chain:   %s\n", strings.Join(r.Chain, " -> "))

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
