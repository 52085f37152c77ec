package websocket

import (
	"log/slog"
	"net/http"
)

type originPolicy interface {
	Allows(origin string) bool
}

// NewCheckOrigin adapts an origin policy to centrifuge's websocket upgrade hook.
func NewCheckOrigin(policy originPolicy) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if policy.Allows(origin) {
			return true
		}
		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}
