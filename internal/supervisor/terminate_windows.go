//go:build windows

package supervisor

import "os"

// Windows has no SIGTERM equivalent for console-less children.
func gracefulTerminate(p *os.Process) error {
	return p.Kill()
}
