//go:build unix

package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KONFeature/wordforge/internal/daemon"
	"github.com/KONFeature/wordforge/internal/sites"
)

var (
	sitesJSON     bool
	refreshReload bool
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "Manage linked WordPress sites",
}

var sitesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List linked sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.ListSitesResponse
		if err := client().GetJSON(cmd.Context(), "/api/sites", &out); err != nil {
			return err
		}
		var active daemon.SiteResponse
		if err := client().GetJSON(cmd.Context(), "/api/sites/active", &active); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		if len(out.Sites) == 0 {
			fmt.Println("No sites linked")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tNAME\tURL\tLAST USED")
		for _, s := range out.Sites {
			mark := ""
			if active.Site != nil && active.Site.ID == s.ID {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", mark, s.ID, s.Name, s.URL, time.Unix(s.LastUsedAt, 0).Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var sitesActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the active site",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.SiteResponse
		if err := client().GetJSON(cmd.Context(), "/api/sites/active", &out); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		if out.Site == nil {
			fmt.Println("No active site")
			return nil
		}
		fmt.Printf("%s (%s)\n", out.Site.Name, out.Site.URL)
		fmt.Printf("  ID:      %s\n", out.Site.ID)
		fmt.Printf("  Project: %s\n", out.Site.ProjectDir)
		return nil
	},
}

var sitesUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Make a site the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client().PutJSON(cmd.Context(), "/api/sites/active", daemon.SetActiveRequest{ID: args[0]}, nil); err != nil {
			return err
		}
		fmt.Printf("Active site is now %s\n", args[0])
		return nil
	},
}

var sitesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Unlink a site and delete its local project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.SiteResponse
		if err := client().DeleteJSON(cmd.Context(), "/api/sites/"+url.PathEscape(args[0]), &out); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		fmt.Printf("Removed %q\n", out.Site.Name)
		return nil
	},
}

var sitesConnectCmd = &cobra.Command{
	Use:   "connect <site-url> <token>",
	Short: "Link a site using a one-time connect token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.SiteResponse
		req := daemon.ConnectRequest{SiteURL: args[0], Token: args[1]}
		if err := client().PostJSON(cmd.Context(), "/api/sites/connect", req, &out); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		fmt.Printf("Connected %q (id=%s)\n", out.Site.Name, out.Site.ID)
		fmt.Printf("  Project: %s\n", out.Site.ProjectDir)
		return nil
	},
}

var sitesCheckCmd = &cobra.Command{
	Use:   "check [id]",
	Short: "Check whether a site's config changed remotely",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/sites/config"
		if len(args) == 1 {
			path += "?site_id=" + url.QueryEscape(args[0])
		}
		var out sites.SyncStatus
		if err := client().GetJSON(cmd.Context(), path, &out); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		switch {
		case out.RemoteHash == "":
			fmt.Println("Could not reach the site; sync status unknown")
		case out.UpdateAvailable:
			fmt.Println("A config update is available; run `wordforge sites refresh`")
		default:
			fmt.Println("Config is up to date")
		}
		return nil
	},
}

var sitesRefreshCmd = &cobra.Command{
	Use:   "refresh [id]",
	Short: "Download a site's latest config into its project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := daemon.RefreshRequest{Restart: refreshReload}
		if len(args) == 1 {
			req.SiteID = args[0]
		}
		var out daemon.RefreshResponse
		if err := client().PostJSON(cmd.Context(), "/api/sites/refresh", req, &out); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		fmt.Printf("Config refreshed (hash %s)\n", out.Hash)
		return nil
	},
}

var sitesFolderCmd = &cobra.Command{
	Use:   "folder <id>",
	Short: "Print a site's project directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.FolderResponse
		if err := client().GetJSON(cmd.Context(), "/api/sites/"+url.PathEscape(args[0])+"/folder", &out); err != nil {
			return err
		}
		fmt.Println(out.Path)
		return nil
	},
}

var sitesAgentsCmd = &cobra.Command{
	Use:   "agents <id>",
	Short: "List the agents a site ships in its config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out daemon.AgentsResponse
		if err := client().GetJSON(cmd.Context(), "/api/sites/"+url.PathEscape(args[0])+"/agents", &out); err != nil {
			return err
		}
		if sitesJSON {
			return printJSON(out)
		}
		if len(out.Agents) == 0 {
			fmt.Println("No agents in this site's config")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMODE\tMODEL\tDESCRIPTION")
		for _, a := range out.Agents {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.Mode, a.Model, a.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
	sitesCmd.PersistentFlags().BoolVar(&sitesJSON, "json", false, "print JSON")
	sitesRefreshCmd.Flags().BoolVar(&refreshReload, "restart", false, "restart OpenCode around the refresh if it is running")
	sitesCmd.AddCommand(
		sitesListCmd,
		sitesActiveCmd,
		sitesUseCmd,
		sitesRemoveCmd,
		sitesConnectCmd,
		sitesCheckCmd,
		sitesRefreshCmd,
		sitesFolderCmd,
		sitesAgentsCmd,
	)
}
