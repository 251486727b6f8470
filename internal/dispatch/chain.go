package dispatch

import (
	"fmt"
	"strings"
)

// Strategy names.
const (
	StrategyLPR        = "lpr"
	StrategyPowerShell = "powershell"
	StrategyCopy       = "copy"
	StrategyWinSpool   = "winspool"
)

// Platform tags.
const (
	PlatformPOSIX   = "posix"
	PlatformWindows = "windows"
)

var defaultChains = map[string][]string{
	PlatformPOSIX:   {StrategyLPR},
	PlatformWindows: {StrategyPowerShell, StrategyCopy},
}

// PlatformFor maps a GOOS value to a platform tag.
func PlatformFor(goos string) string {
	if goos == "windows" {
		return PlatformWindows
	}
	return PlatformPOSIX
}

// ChainFor returns the default strategy names for goos.
func ChainFor(goos string) []string {
	return append([]string(nil), defaultChains[PlatformFor(goos)]...)
}

// KnownStrategies lists every strategy name BuildChain accepts.
func KnownStrategies() []string {
	return []string{StrategyLPR, StrategyPowerShell, StrategyCopy, StrategyWinSpool}
}

// Commands returns the external executables a chain depends on.
func Commands(names []string) []string {
	var out []string
	for _, name := range names {
		switch strings.ToLower(name) {
		case StrategyLPR:
			out = append(out, "lpr")
		case StrategyPowerShell:
			out = append(out, "powershell")
		case StrategyCopy:
			out = append(out, "cmd")
		}
	}
	return out
}

// BuildChain instantiates strategies by name, in order.
func BuildChain(names []string, runner Runner) ([]Strategy, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("strategy chain is empty")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is nil")
	}

	chain := make([]Strategy, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if seen[name] {
			return nil, fmt.Errorf("strategy %q listed twice", name)
		}
		seen[name] = true

		switch name {
		case StrategyLPR:
			chain = append(chain, NewLPR(runner, ""))
		case StrategyPowerShell:
			chain = append(chain, NewPowerShell(runner, ""))
		case StrategyCopy:
			chain = append(chain, NewCopy(runner, ""))
		case StrategyWinSpool:
			s, err := newWinSpool()
			if err != nil {
				return nil, err
			}
			chain = append(chain, s)
		default:
			return nil, fmt.Errorf("unknown strategy %q (known: %s)", raw, strings.Join(KnownStrategies(), ", "))
		}
	}
	return chain, nil
}

// Names returns the names of a built chain.
func Names(chain []Strategy) []string {
	out := make([]string, 0, len(chain))
	for _, s := range chain {
		out = append(out, s.Name())
	}
	return out
}
