package dispatch

import (
	"context"
	"strings"
)

// PowerShell verifies the printer exists and pipes the raw document to it.
type PowerShell struct {
	runner  Runner
	command string
}

// NewPowerShell returns the powershell strategy. An empty command defaults to
// "powershell".
func NewPowerShell(runner Runner, command string) *PowerShell {
	if command == "" {
		command = "powershell"
	}
	return &PowerShell{runner: runner, command: command}
}

// Name implements Strategy.
func (s *PowerShell) Name() string { return StrategyPowerShell }

// Attempt succeeds iff the script exits cleanly. Any pipeline error aborts it.
func (s *PowerShell) Attempt(ctx context.Context, documentPath, printer string) error {
	res, err := s.runner.Run(ctx, s.command,
		"-NoProfile", "-NonInteractive", "-Command", powerShellScript(documentPath, printer))
	if err != nil {
		return &StrategyError{
			Strategy:   StrategyPowerShell,
			Message:    err.Error(),
			Diagnostic: res.Stderr,
		}
	}
	return nil
}

func powerShellScript(documentPath, printer string) string {
	p := psQuote(printer)
	return "$ErrorActionPreference='Stop';" +
		"Get-Printer -Name " + p + " | Out-Null;" +
		"Get-Content -LiteralPath " + psQuote(documentPath) + " -Raw | Out-Printer -Name " + p + ";"
}

// psQuote renders s as a single-quoted PowerShell literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
