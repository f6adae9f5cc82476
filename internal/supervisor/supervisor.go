// Package supervisor runs the sidecar server as a child process and tracks
// its lifecycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/events"
)

var (
	ErrAlreadyRunning = errors.New("sidecar is already running")
	ErrNotInstalled   = errors.New("sidecar is not installed")
	// ErrNoAvailablePort means no loopback port could be bound.
	ErrNoAvailablePort = errors.New("no available port")
	// ErrReadinessTimeout means the sidecar never answered; it is left running.
	ErrReadinessTimeout = errors.New("sidecar failed to start within timeout")
	// ErrStoppedDuringStartup means Stop won the race against a pending Start.
	ErrStoppedDuringStartup = errors.New("sidecar was stopped during startup")
)

// Binary locates the installed sidecar executable.
type Binary interface {
	BinaryPath() string
	IsInstalled() bool
}

type Config struct {
	Binary   Binary
	PortFile string
	// StateDir roots the sidecar's private XDG directories.
	StateDir   string
	ClientName string

	ReadyAttempts int
	ReadyInterval time.Duration
	StopGrace     time.Duration

	Bus    *events.Bus
	Logger *zap.SugaredLogger
}

// Supervisor owns at most one sidecar process. Its lock only guards the
// handle; readiness polling and termination run without it.
type Supervisor struct {
	binary        Binary
	portFile      string
	stateDir      string
	clientName    string
	readyAttempts int
	readyInterval time.Duration
	stopGrace     time.Duration
	bus           *events.Bus
	logger        *zap.SugaredLogger
	ready         *http.Client

	mu     sync.Mutex
	proc   *process
	state  State
	errMsg string
}

func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "wordforge-desktop"
	}
	if cfg.ReadyAttempts < 1 {
		cfg.ReadyAttempts = 30
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = 500 * time.Millisecond
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 2 * time.Second
	}
	return &Supervisor{
		binary:        cfg.Binary,
		portFile:      cfg.PortFile,
		stateDir:      cfg.StateDir,
		clientName:    cfg.ClientName,
		readyAttempts: cfg.ReadyAttempts,
		readyInterval: cfg.ReadyInterval,
		stopGrace:     cfg.StopGrace,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		ready: &http.Client{
			Timeout:   2 * time.Second,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		state: StateStopped,
	}
}

// process is a spawned sidecar. done is closed once Wait has returned.
type process struct {
	cmd     *exec.Cmd
	port    int
	done    chan struct{}
	waitErr error
	stdout  *lineWriter
	stderr  *lineWriter
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (s *Supervisor) spawn(port int, corsOrigin, projectDir string) (*process, error) {
	if err := s.ensureStateDirs(); err != nil {
		return nil, fmt.Errorf("failed to create sidecar state dirs: %w", err)
	}

	cmd := s.command(port, corsOrigin, projectDir)
	p := &process{
		cmd:    cmd,
		port:   port,
		done:   make(chan struct{}),
		stdout: newLineWriter(s.bus, events.TopicSidecarLog, "stdout", s.logger),
		stderr: newLineWriter(s.bus, events.TopicSidecarError, "stderr", s.logger),
	}
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn sidecar: %w", err)
	}

	go func() {
		err := cmd.Wait()
		p.stdout.Flush()
		p.stderr.Flush()
		p.waitErr = err
		close(p.done)
	}()
	return p, nil
}

// Start launches the sidecar and blocks until it answers HTTP requests.
// If it never does, ErrReadinessTimeout is returned and the process is
// left running until Stop.
func (s *Supervisor) Start(ctx context.Context, corsOrigin, projectDir string) (int, error) {
	s.mu.Lock()
	if s.proc != nil {
		if !s.proc.exited() {
			s.mu.Unlock()
			return 0, ErrAlreadyRunning
		}
		s.proc = nil
	}
	if s.binary == nil || !s.binary.IsInstalled() {
		s.mu.Unlock()
		return 0, ErrNotInstalled
	}

	port, err := s.resolvePort()
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	p, err := s.spawn(port, corsOrigin, projectDir)
	if err != nil {
		s.state, s.errMsg = StateError, err.Error()
		s.mu.Unlock()
		return 0, err
	}
	s.proc = p
	s.state, s.errMsg = StateStarting, ""
	s.mu.Unlock()

	s.logger.Infow("sidecar spawned", "pid", p.cmd.Process.Pid, "port", port, "project_dir", projectDir, "cors", corsOrigin)
	readyErr := s.waitReady(ctx, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != p {
		return 0, ErrStoppedDuringStartup
	}
	if readyErr != nil {
		s.state, s.errMsg = StateError, readyErr.Error()
		s.logger.Warnw("sidecar did not become ready", "port", port, "error", readyErr)
		return 0, readyErr
	}
	s.state = StateRunning
	s.logger.Infow("sidecar ready", "port", port)
	return port, nil
}

func (s *Supervisor) waitReady(ctx context.Context, p *process) error {
	url := fmt.Sprintf("http://127.0.0.1:%d/", p.port)
	defer s.ready.CloseIdleConnections()

	for attempt := 1; attempt <= s.readyAttempts; attempt++ {
		if p.exited() {
			return fmt.Errorf("sidecar exited before becoming ready: %v", p.waitErr)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if resp, err := s.ready.Do(req); err == nil {
			resp.Body.Close()
			return nil
		}

		if attempt == s.readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
		case <-time.After(s.readyInterval):
		}
	}
	return ErrReadinessTimeout
}

// Stop terminates the sidecar if one is running. Calling it with nothing
// running is not an error.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	p := s.proc
	s.proc = nil
	s.state, s.errMsg = StateStopped, ""
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	err := s.terminate(p)
	if err != nil {
		s.logger.Warnw("sidecar did not stop cleanly", "port", p.port, "error", err)
		return err
	}
	s.logger.Infow("sidecar stopped", "port", p.port)
	return nil
}

func (s *Supervisor) terminate(p *process) error {
	if p.exited() {
		return nil
	}
	if err := gracefulTerminate(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Debugw("graceful terminate failed, killing", "error", err)
	} else {
		select {
		case <-p.done:
			return nil
		case <-time.After(s.stopGrace):
		}
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill sidecar: %w", err)
	}
	<-p.done
	return nil
}

// Port returns the sidecar's port while it is starting or running.
func (s *Supervisor) Port() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil || s.proc.exited() {
		return 0, false
	}
	if s.state != StateStarting && s.state != StateRunning {
		return 0, false
	}
	return s.proc.port, true
}

func (s *Supervisor) Status() Status {
	if s.binary == nil || !s.binary.IsInstalled() {
		return Status{State: StateNotInstalled}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		if s.state == StateError {
			return Status{State: StateError, Message: s.errMsg}
		}
		return Status{State: StateStopped}
	}
	if s.proc.exited() && s.state != StateError {
		msg := "sidecar exited"
		if s.proc.waitErr != nil {
			msg = fmt.Sprintf("sidecar exited: %v", s.proc.waitErr)
		}
		return Status{State: StateError, Message: msg}
	}
	return Status{State: s.state, Message: s.errMsg}
}

// Running reports whether a live sidecar process exists.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil && !s.proc.exited()
}
