package dispatch

import (
	"context"
	"regexp"
	"strings"
)

// copiedPattern matches the "1 file(s) copied" confirmation printed by
// copy /b in the locales the agent is deployed to.
var copiedPattern = regexp.MustCompile(`(?i)\b1\s+(file\(s\) copied|arquivo\(s\) copiado\(s\)|archivo\(s\) copiado\(s\)|fichier\(s\) copi.\(s\)|Datei\(en\) kopiert)`)

// Copy performs a binary copy to the printer's local share.
// cmd.exe may exit 0 on a failed copy, so output is the only trusted signal.
type Copy struct {
	runner  Runner
	command string
}

// NewCopy returns the copy strategy. An empty command defaults to "cmd".
func NewCopy(runner Runner, command string) *Copy {
	if command == "" {
		command = "cmd"
	}
	return &Copy{runner: runner, command: command}
}

// Name implements Strategy.
func (s *Copy) Name() string { return StrategyCopy }

// Attempt runs `cmd /c copy /b <file> \\localhost\<printer>`.
func (s *Copy) Attempt(ctx context.Context, documentPath, printer string) error {
	res, err := s.runner.Run(ctx, s.command, "/c", "copy", "/b", documentPath, printerShare(printer))
	if err == nil && copyConfirmed(res.Stdout) {
		return nil
	}

	diag := strings.TrimSpace(res.Stderr)
	if diag == "" {
		diag = strings.TrimSpace(res.Stdout)
	}
	msg := "copy /b did not confirm the copy"
	if err != nil {
		msg = err.Error()
	}
	return &StrategyError{Strategy: StrategyCopy, Message: msg, Diagnostic: diag}
}

func printerShare(printer string) string {
	return `\\localhost\` + printer
}

func copyConfirmed(output string) bool {
	return copiedPattern.MatchString(output)
}
