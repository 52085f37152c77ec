package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/votepulse/internal/app"
	"github.com/pscheid92/votepulse/internal/domain"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

type castVoteBody struct {
	ProductID string `json:"productId"`
	ClientID  string `json:"clientId"`
	VoteType  *int   `json:"voteType"`
}

type statusResponse struct {
	Upvotes   int  `json:"upvotes"`
	Downvotes int  `json:"downvotes"`
	Score     int  `json:"score"`
	VoteType  *int `json:"voteType"`
	HasVoted  bool `json:"hasVoted"`
}

type castVoteResponse struct {
	statusResponse
	RemainingVotes int `json:"remainingVotes"`
}

type rankingEntry struct {
	ProductID string `json:"productId"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	Score     int    `json:"score"`
}

func newStatusResponse(s domain.Status) statusResponse {
	return statusResponse{
		Upvotes:   s.Upvotes,
		Downvotes: s.Downvotes,
		Score:     s.Score,
		VoteType:  s.VoteType.Nullable(),
		HasVoted:  s.HasVoted,
	}
}

func clientIDOrAnonymous(clientID string) string {
	if strings.TrimSpace(clientID) == "" {
		return domain.AnonymousClientID
	}
	return clientID
}

func (s *Server) handleGetStatus(c echo.Context) error {
	res, err := s.app.GetStatus(c.Request().Context(), app.StatusRequest{
		ProductID: c.Param("productId"),
		ClientID:  clientIDOrAnonymous(c.QueryParam("clientId")),
		Caller:    c.RealIP(),
	})
	if err != nil {
		return err
	}

	setRateLimitHeaders(c, res.RateLimit)
	if err := c.JSON(http.StatusOK, newStatusResponse(res.Status)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleCastVote(c echo.Context) error {
	var body castVoteBody
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return apperrors.InvalidArgumentError("invalid JSON request body")
	}

	res, err := s.app.CastVote(c.Request().Context(), app.CastVoteRequest{
		ProductID: body.ProductID,
		ClientID:  clientIDOrAnonymous(body.ClientID),
		VoteType:  body.VoteType,
		Caller:    c.RealIP(),
	})
	if err != nil {
		return err
	}

	setRateLimitHeaders(c, res.RateLimit)
	response := castVoteResponse{
		statusResponse: newStatusResponse(res.Status),
		RemainingVotes: res.RateLimit.Remaining,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRanking(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return apperrors.InvalidArgumentError("limit must be a positive integer").WithField("limit", raw)
		}
		limit = n
	}

	ranking, err := s.app.Ranking(c.Request().Context(), app.RankingRequest{Limit: limit, Caller: c.RealIP()})
	if err != nil {
		return err
	}

	entries := make([]rankingEntry, 0, len(ranking))
	for _, agg := range ranking {
		entries = append(entries, rankingEntry{
			ProductID: agg.ProductID,
			Upvotes:   agg.Upvotes,
			Downvotes: agg.Downvotes,
			Score:     agg.Score(),
		})
	}
	if err := c.JSON(http.StatusOK, entries); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
