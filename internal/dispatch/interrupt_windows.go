//go:build windows

package dispatch

import "os"

// Windows has no SIGTERM for arbitrary console processes.
func interrupt(p *os.Process) error {
	return p.Kill()
}
