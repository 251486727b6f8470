package dispatch

import "context"

// LPR submits documents to the POSIX spooler in raw mode.
type LPR struct {
	runner  Runner
	command string
}

// NewLPR returns the lpr strategy. An empty command defaults to "lpr".
func NewLPR(runner Runner, command string) *LPR {
	if command == "" {
		command = "lpr"
	}
	return &LPR{runner: runner, command: command}
}

// Name implements Strategy.
func (s *LPR) Name() string { return StrategyLPR }

// Attempt runs "lpr -P <printer> -o raw <file>"; success iff exit status 0.
func (s *LPR) Attempt(ctx context.Context, documentPath, printer string) error {
	res, err := s.runner.Run(ctx, s.command, "-P", printer, "-o", "raw", documentPath)
	if err != nil {
		return &StrategyError{
			Strategy:   StrategyLPR,
			Message:    err.Error(),
			Diagnostic: res.Stderr,
		}
	}
	return nil
}
