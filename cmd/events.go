//go:build unix

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/KONFeature/wordforge/internal/daemon"
	"github.com/KONFeature/wordforge/internal/events"
)

var (
	eventsTopic  string
	eventsLimit  int
	eventsFollow bool
	eventsJSON   bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show daemon events such as OpenCode output",
	Long: `Show recent daemon events: OpenCode stdout (opencode:log) and stderr
(opencode:error), download progress, config updates and deep links.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if eventsTopic != "" {
			q.Set("topic", eventsTopic)
		}
		if eventsLimit > 0 {
			q.Set("limit", strconv.Itoa(eventsLimit))
		}
		if eventsFollow {
			q.Set("follow", "true")
			return client().Stream(cmd.Context(), http.MethodGet, "/api/events?"+q.Encode(), nil, func(raw json.RawMessage) error {
				var ev events.Event
				if err := json.Unmarshal(raw, &ev); err != nil {
					return err
				}
				return printEvent(ev)
			})
		}

		var out daemon.EventsResponse
		if err := client().GetJSON(cmd.Context(), "/api/events?"+q.Encode(), &out); err != nil {
			return err
		}
		for _, ev := range out.Events {
			if err := printEvent(ev); err != nil {
				return err
			}
		}
		return nil
	},
}

func printEvent(ev events.Event) error {
	if eventsJSON {
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	payload := ev.Payload
	if _, ok := payload.(string); !ok {
		b, _ := json.Marshal(payload)
		payload = string(b)
	}
	fmt.Printf("%s %-28s %v\n", ev.Time.Local().Format(time.TimeOnly), ev.Topic, payload)
	return nil
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsTopic, "topic", "", "only show events of this topic")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "number of recent events to show")
	eventsCmd.Flags().BoolVarP(&eventsFollow, "follow", "f", false, "stream new events until interrupted")
	eventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "print one JSON object per line")
}
