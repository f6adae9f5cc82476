package supervisor

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// portFree reports whether port can be bound on the loopback interface.
func portFree(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoAvailablePort, err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func readPortFile(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || port < 1 || port > 65535 {
		return 0, false
	}
	return port, true
}

// resolvePort reuses the persisted port while it is free so the sidecar
// keeps a stable address across restarts; otherwise a fresh port is picked
// and persisted.
func (s *Supervisor) resolvePort() (int, error) {
	if port, ok := readPortFile(s.portFile); ok {
		if portFree(port) {
			return port, nil
		}
		s.logger.Infow("persisted sidecar port is busy, picking another", "port", port)
	}

	port, err := pickFreePort()
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(s.portFile, []byte(strconv.Itoa(port)), 0o644); err != nil {
		s.logger.Warnw("failed to persist sidecar port", "path", s.portFile, "error", err)
	}
	return port, nil
}
