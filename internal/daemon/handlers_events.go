//go:build unix

package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/KONFeature/wordforge/internal/events"
)

type DeepLinkRequest struct {
	URL     string `json:"url"`
	Connect bool   `json:"connect"`
}

type EventsResponse struct {
	Events []events.Event `json:"events"`
}

func (d *Daemon) handleDeepLink(w http.ResponseWriter, r *http.Request) {
	var req DeepLinkRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.fail(w, r, err)
		return
	}
	if req.URL == "" {
		writeError(w, "url is required", http.StatusBadRequest)
		return
	}

	res, err := d.app.HandleDeepLink(r.Context(), req.URL, req.Connect)
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, res, http.StatusOK)
}

// handleEvents returns recent events, or with follow=true keeps the
// response open and streams new events as NDJSON.
func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, fmt.Sprintf("invalid limit %q", s), http.StatusBadRequest)
			return
		}
		limit = n
	}
	topic := q.Get("topic")
	follow, _ := strconv.ParseBool(q.Get("follow"))

	bus := d.app.Events()
	if !follow {
		list := bus.Recent(limit, topic)
		writeJSON(w, EventsResponse{Events: list}, http.StatusOK)
		return
	}

	var topics []string
	if topic != "" {
		topics = append(topics, topic)
	}
	sub := bus.Subscribe(0, topics...)
	defer sub.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	_ = rc.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}
