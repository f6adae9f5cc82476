package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// waitDelay bounds how long Wait keeps copying output after the sidecar
// exits, in case a grandchild still holds the pipes.
const waitDelay = 2 * time.Second

// stateDirs are the XDG homes the sidecar gets, relative to the state dir.
var stateDirs = []struct{ env, dir string }{
	{"XDG_DATA_HOME", "data"},
	{"XDG_CONFIG_HOME", "config"},
	{"XDG_STATE_HOME", "state"},
	{"XDG_CACHE_HOME", "cache"},
}

func (s *Supervisor) sidecarEnv(projectDir string) []string {
	env := []string{
		"OPENCODE_CLIENT=" + s.clientName,
		"OPENCODE_AUTO_SHARE=false",
		"OPENCODE_DISABLE_AUTOUPDATE=true",
		"OPENCODE_DISABLE_LSP_DOWNLOAD=true",
		"OPENCODE_FAKE_VCS=git",
	}
	for _, d := range stateDirs {
		env = append(env, d.env+"="+filepath.Join(s.stateDir, d.dir))
	}
	if projectDir != "" {
		env = append(env, "OPENCODE_CONFIG_DIR="+projectDir)
	}
	return env
}

func (s *Supervisor) ensureStateDirs() error {
	for _, d := range stateDirs {
		if err := os.MkdirAll(filepath.Join(s.stateDir, d.dir), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// command builds the sidecar invocation: serve --port <port> [--cors <origin>].
func (s *Supervisor) command(port int, corsOrigin, projectDir string) *exec.Cmd {
	args := []string{"serve", "--port", strconv.Itoa(port)}
	if corsOrigin != "" {
		args = append(args, "--cors", corsOrigin)
	}

	cmd := exec.Command(s.binary.BinaryPath(), args...)
	cmd.Env = append(os.Environ(), s.sidecarEnv(projectDir)...)
	if projectDir != "" {
		cmd.Dir = projectDir
	}
	cmd.WaitDelay = waitDelay
	return cmd
}
