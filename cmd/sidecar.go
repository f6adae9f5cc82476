//go:build unix

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/KONFeature/wordforge/internal/apiclient"
	"github.com/KONFeature/wordforge/internal/daemon"
)

var sidecarJSON bool

var sidecarCmd = &cobra.Command{
	Use:   "sidecar",
	Short: "Install and control the OpenCode sidecar",
}

var sidecarVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the installed OpenCode version",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.VersionResponse
		if err := client().GetJSON(cmd.Context(), "/api/installer/version", &out); err != nil {
			return err
		}
		if sidecarJSON {
			return printJSON(out)
		}
		if out.Version == nil {
			fmt.Println("OpenCode is not installed")
			return nil
		}
		fmt.Println(*out.Version)
		return nil
	},
}

var sidecarLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the latest OpenCode release",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.VersionResponse
		if err := client().GetJSON(cmd.Context(), "/api/installer/latest", &out); err != nil {
			return err
		}
		if sidecarJSON {
			return printJSON(out)
		}
		if out.Version != nil {
			fmt.Println(*out.Version)
		}
		return nil
	},
}

var sidecarCheckUpdateCmd = &cobra.Command{
	Use:   "check-update",
	Short: "Check whether a newer OpenCode release is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.UpdateResponse
		if err := client().GetJSON(cmd.Context(), "/api/installer/update", &out); err != nil {
			return err
		}
		if sidecarJSON {
			return printJSON(out)
		}
		if out.UpdateAvailable {
			fmt.Println("An update is available; run `wordforge sidecar install`")
		} else {
			fmt.Println("OpenCode is up to date")
		}
		return nil
	},
}

var sidecarInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install the latest OpenCode release",
	RunE: func(cmd *cobra.Command, args []string) error {
		var final daemon.DownloadLine
		err := client().Stream(cmd.Context(), http.MethodPost, "/api/installer/download", nil, func(raw json.RawMessage) error {
			var line daemon.DownloadLine
			if err := json.Unmarshal(raw, &line); err != nil {
				return err
			}
			if line.Done {
				final = line
				return nil
			}
			if sidecarJSON {
				return printJSON(line)
			}
			fmt.Printf("[%3d%%] %s\n", line.Percent, line.Message)
			return nil
		})
		if err != nil {
			return err
		}
		if !final.Done {
			return errors.New("download stream ended unexpectedly")
		}
		if final.Error != "" {
			return errors.New(final.Error)
		}
		if sidecarJSON {
			return printJSON(final)
		}
		fmt.Printf("Installed OpenCode %s\n", final.Version)
		return nil
	},
}

var sidecarStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start OpenCode for the active site",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.PortResponse
		if err := client().PostJSON(cmd.Context(), "/api/sidecar/start", nil, &out); err != nil {
			return err
		}
		if sidecarJSON {
			return printJSON(out)
		}
		fmt.Printf("OpenCode running at http://127.0.0.1:%d\n", *out.Port)
		return nil
	},
}

var sidecarStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop OpenCode",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().PostJSON(cmd.Context(), "/api/sidecar/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("OpenCode stopped")
		return nil
	},
}

var sidecarPortCmd = &cobra.Command{
	Use:   "port",
	Short: "Print the port OpenCode listens on",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.PortResponse
		if err := client().GetJSON(cmd.Context(), "/api/sidecar/port", &out); err != nil {
			return err
		}
		if sidecarJSON {
			return printJSON(out)
		}
		if out.Port == nil {
			return errors.New("OpenCode is not running")
		}
		fmt.Println(*out.Port)
		return nil
	},
}

var sidecarStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the OpenCode process state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.SidecarStatusResponse
		if err := client().GetJSON(cmd.Context(), "/api/sidecar/status", &out); err != nil {
			return err
		}
		if sidecarJSON {
			return printJSON(out)
		}
		fmt.Println(out.Status)
		return nil
	},
}

var sidecarIdleShutdownCmd = &cobra.Command{
	Use:   "idle-shutdown",
	Short: "Signal that OpenCode is idle and may be stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		return client().PostJSON(cmd.Context(), "/api/sidecar/idle-shutdown", nil, nil)
	},
}

func client() *apiclient.Client { return apiclient.New(cfg.SocketPath) }

func init() {
	rootCmd.AddCommand(sidecarCmd)
	sidecarCmd.PersistentFlags().BoolVar(&sidecarJSON, "json", false, "print JSON")
	sidecarCmd.AddCommand(
		sidecarVersionCmd,
		sidecarLatestCmd,
		sidecarCheckUpdateCmd,
		sidecarInstallCmd,
		sidecarStartCmd,
		sidecarStopCmd,
		sidecarPortCmd,
		sidecarStatusCmd,
		sidecarIdleShutdownCmd,
	)
}
