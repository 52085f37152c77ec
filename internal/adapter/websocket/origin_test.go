package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/votepulse/internal/platform/config"
)

func TestNewCheckOrigin(t *testing.T) {
	cfg := &config.Config{
		AppEnv:         "production",
		AppURL:         "https://votes.example.com",
		AllowedOrigins: "https://shop.example.com",
	}
	check := NewCheckOrigin(cfg.Origins())

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://votes.example.com", true},
		{"https://shop.example.com", true},
		{"https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/connection/websocket", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(r))
		})
	}
}
