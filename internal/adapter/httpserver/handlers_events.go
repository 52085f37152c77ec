package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/votepulse/internal/domain"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

const sseHeartbeatInterval = 15 * time.Second

// handleVoteEvents streams vote events for one product as server-sent events
// until the client disconnects or the hub shuts down.
func (s *Server) handleVoteEvents(c echo.Context) error {
	productID := strings.TrimSpace(c.Param("productId"))
	if productID == "" || strings.Contains(productID, ":") {
		return apperrors.InvalidArgumentError("invalid productId").WithField("field", "productId")
	}

	ctx := c.Request().Context()
	sub, err := s.events.Subscribe(ctx, domain.VoteTopic(productID))
	if err != nil {
		return apperrors.InternalError("failed to subscribe to vote events", err).WithField("productId", productID)
	}
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := s.clock.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(w, event); err != nil {
				return nil
			}
		case <-heartbeat.Chan():
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func writeEvent(w *echo.Response, event domain.VoteEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal vote event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %s\nevent: vote\ndata: %s\n\n", event.ID, data); err != nil {
		return fmt.Errorf("write vote event: %w", err)
	}
	w.Flush()
	return nil
}
