//go:build !windows

package supervisor

import (
	"os"
	"syscall"
)

func gracefulTerminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
