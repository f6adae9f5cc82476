//go:build unix

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KONFeature/wordforge/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the WordForge daemon",
	Long: `Control the WordForge background daemon.

The daemon owns the OpenCode sidecar process and the site registry, and
serves every other command over a Unix socket.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start [wordforge://connect?...]",
	Short: "Start the WordForge daemon",
	Long: `Start the WordForge daemon in foreground mode.

Deep links passed as arguments are handled once the daemon is up, the way the
OS hands them to the desktop application.

For background operation, use:
  nohup wordforge daemon start > /tmp/wordforge-daemon.log 2>&1 &`,
	RunE: startDaemon,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the WordForge daemon",
	Long:  "Stop the running daemon gracefully. The sidecar is stopped with it.",
	RunE:  stopDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check daemon status",
	Long:  "Check if the WordForge daemon is running and display its status.",
	RunE:  statusDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

func newDaemon() (*daemon.Daemon, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	d, err := daemon.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize daemon: %w", err)
	}
	return d, nil
}

func startDaemon(cmd *cobra.Command, args []string) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	return d.Start(args)
}

func stopDaemon(cmd *cobra.Command, args []string) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	return d.Stop()
}

func statusDaemon(cmd *cobra.Command, args []string) error {
	d, err := newDaemon()
	if err != nil {
		return err
	}

	status, err := d.GetStatus()
	if err != nil {
		return err
	}

	if !status.Running {
		if status.PID > 0 {
			if status.ErrorMessage != "" {
				fmt.Printf("WordForge daemon process exists (PID: %d) but not responding\n", status.PID)
				fmt.Printf("  Socket: %s\n", status.SocketPath)
				fmt.Printf("  Error: %v\n", status.ErrorMessage)
			} else {
				fmt.Printf("WordForge daemon is not running (stale pidfile)\n")
				fmt.Printf("  Socket: %s\n", status.SocketPath)
			}
		} else {
			fmt.Printf("WordForge daemon is not running\n")
			fmt.Printf("  Socket: %s\n", status.SocketPath)
		}
	} else {
		fmt.Printf("WordForge daemon running (PID: %d)\n", status.PID)
		fmt.Printf("  Socket: %s\n", status.SocketPath)
		fmt.Printf("  Uptime: %s\n", status.Uptime.Round(time.Second))
		fmt.Printf("  Sidecar: %s\n", status.Sidecar)
	}

	return nil
}
