package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/coinstream/internal/model"
	"github.com/rickgao/coinstream/internal/router"
	"github.com/rickgao/coinstream/internal/session"
	"github.com/rickgao/coinstream/internal/version"
)

// sessionStatus is the part of *session.Session the health endpoint reads.
type sessionStatus interface {
	Venue() string
	State() session.State
	Authenticated() bool
	Keys() []model.SubscriptionKey
	Bindings() []router.Binding
}

type bindingView struct {
	Stream     string `json:"stream"`
	Instrument string `json:"instrument"`
	Channel    string `json:"channel"`
	Confirmed  bool   `json:"confirmed"`
}

// createHealthHandler creates the HTTP handler for health checks and metrics.
func createHealthHandler(sess sessionStatus, metricsHandler interface{ Handler() http.Handler }, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := sess.State()

		health := struct {
			Status        string                 `json:"status"`
			Venue         string                 `json:"venue"`
			State         string                 `json:"state"`
			Authenticated bool                   `json:"authenticated"`
			Build         version.Info           `json:"build"`
			Components    map[string]interface{} `json:"components"`
		}{
			Status:        "healthy",
			Venue:         sess.Venue(),
			State:         state.String(),
			Authenticated: sess.Authenticated(),
			Build:         version.Get(),
			Components:    make(map[string]interface{}),
		}

		bindings := sess.Bindings()
		views := make([]bindingView, 0, len(bindings))
		pending := 0
		for _, b := range bindings {
			views = append(views, bindingView{
				Stream:     string(b.Key.Stream),
				Instrument: b.Key.Instrument,
				Channel:    string(b.Channel),
				Confirmed:  b.Confirmed,
			})
			if !b.Confirmed {
				pending++
			}
		}
		health.Components["subscriptions"] = map[string]interface{}{
			"keys":     len(sess.Keys()),
			"pending":  pending,
			"bindings": views,
		}

		switch {
		case state != session.StateOpen:
			health.Status = "unhealthy"
		case pending > 0:
			health.Status = "degraded"
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.Handle(metricsPath, metricsHandler.Handler())

	return mux
}
