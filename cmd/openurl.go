//go:build unix

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KONFeature/wordforge/internal/app"
	"github.com/KONFeature/wordforge/internal/daemon"
)

var (
	openURLConnect bool
	openURLJSON    bool
)

var openURLCmd = &cobra.Command{
	Use:   "open-url <url>",
	Short: "Hand a wordforge:// connect link to the daemon",
	Long: `Hand a wordforge:// connect link to the daemon, as the OS does when a site's
"Connect desktop" button is clicked. Each token is accepted once; replays are
ignored. With --connect the site is linked immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out app.DeepLinkResult
		req := daemon.DeepLinkRequest{URL: args[0], Connect: openURLConnect}
		if err := client().PostJSON(cmd.Context(), "/api/deep-link", req, &out); err != nil {
			return err
		}
		if openURLJSON {
			return printJSON(out)
		}
		switch {
		case out.Duplicate:
			fmt.Println("Link already handled; ignoring")
		case out.Site != nil:
			fmt.Printf("Connected %q (id=%s)\n", out.Site.Name, out.Site.ID)
		default:
			fmt.Printf("Connect request for %q (%s) received\n", out.Link.Name, out.Link.SiteURL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openURLCmd)
	openURLCmd.Flags().BoolVar(&openURLConnect, "connect", false, "link the site right away")
	openURLCmd.Flags().BoolVar(&openURLJSON, "json", false, "print JSON")
}
