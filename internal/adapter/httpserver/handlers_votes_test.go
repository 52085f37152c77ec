package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/votepulse/internal/app"
	"github.com/pscheid92/votepulse/internal/domain"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

func allowed(remaining int) domain.RateDecision {
	return domain.RateDecision{Allowed: true, Limit: 10, Remaining: remaining, ResetIn: 42 * time.Second}
}

func TestHandleGetStatus(t *testing.T) {
	var got app.StatusRequest
	mockApp := &mockAppService{
		getStatusFn: func(_ context.Context, req app.StatusRequest) (*app.StatusResult, error) {
			got = req
			return &app.StatusResult{
				Status:    domain.NewStatus(domain.Aggregate{ProductID: "p1", Upvotes: 6, Downvotes: 2}, domain.VoteUp),
				RateLimit: allowed(119),
			}, nil
		},
	}
	srv := newTestServer(t, mockApp)

	req := httptest.NewRequest(http.MethodGet, "/api/votes/p1?clientId=alice", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"upvotes":6,"downvotes":2,"score":4,"voteType":1,"hasVoted":true}`, rec.Body.String())
	assert.Equal(t, "p1", got.ProductID)
	assert.Equal(t, "alice", got.ClientID)
	assert.Equal(t, "203.0.113.7", got.Caller)
	assert.Equal(t, "10", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "119", rec.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "42", rec.Header().Get("RateLimit-Reset"))
}

func TestHandleGetStatus_AnonymousDefault(t *testing.T) {
	var got app.StatusRequest
	mockApp := &mockAppService{
		getStatusFn: func(_ context.Context, req app.StatusRequest) (*app.StatusResult, error) {
			got = req
			return &app.StatusResult{}, nil
		},
	}
	srv := newTestServer(t, mockApp)

	req := httptest.NewRequest(http.MethodGet, "/api/votes/p1", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AnonymousClientID, got.ClientID)
	assert.JSONEq(t, `{"upvotes":0,"downvotes":0,"score":0,"voteType":null,"hasVoted":false}`, rec.Body.String())
}

func TestHandleCastVote(t *testing.T) {
	var got app.CastVoteRequest
	mockApp := &mockAppService{
		castVoteFn: func(_ context.Context, req app.CastVoteRequest) (*app.CastVoteResult, error) {
			got = req
			return &app.CastVoteResult{
				Status:    domain.NewStatus(domain.Aggregate{ProductID: "p1", Upvotes: 5, Downvotes: 3}, domain.VoteDown),
				RateLimit: allowed(7),
			}, nil
		},
	}
	srv := newTestServer(t, mockApp)

	body := `{"productId":"p1","clientId":"bob","voteType":-1}`
	req := httptest.NewRequest(http.MethodPost, "/api/votes", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"upvotes":5,"downvotes":3,"score":2,"voteType":-1,"hasVoted":true,"remainingVotes":7}`, rec.Body.String())
	assert.Equal(t, "p1", got.ProductID)
	assert.Equal(t, "bob", got.ClientID)
	require.NotNil(t, got.VoteType)
	assert.Equal(t, -1, *got.VoteType)
	assert.Equal(t, "7", rec.Header().Get("RateLimit-Remaining"))
}

func TestHandleCastVote_AnonymousAndToggleOff(t *testing.T) {
	var got app.CastVoteRequest
	mockApp := &mockAppService{
		castVoteFn: func(_ context.Context, req app.CastVoteRequest) (*app.CastVoteResult, error) {
			got = req
			return &app.CastVoteResult{
				Status:    domain.NewStatus(domain.Aggregate{ProductID: "p1", Upvotes: 5, Downvotes: 2}, domain.VoteNone),
				RateLimit: allowed(6),
			}, nil
		},
	}
	srv := newTestServer(t, mockApp)

	req := httptest.NewRequest(http.MethodPost, "/api/votes", strings.NewReader(`{"productId":"p1","voteType":0}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.AnonymousClientID, got.ClientID)
	require.NotNil(t, got.VoteType)
	assert.Equal(t, 0, *got.VoteType)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp["voteType"])
	assert.Equal(t, false, resp["hasVoted"])
}

func TestHandleCastVote_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{productId`},
		{"fractional vote", `{"productId":"p1","voteType":0.5}`},
		{"string vote", `{"productId":"p1","voteType":"up"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			srv := newTestServer(t, &mockAppService{
				castVoteFn: func(context.Context, app.CastVoteRequest) (*app.CastVoteResult, error) {
					called = true
					return nil, nil
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/votes", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			srv.echo.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestHandleCastVote_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"invalid", apperrors.InvalidArgumentError("voteType must be one of: -1 0 1"), http.StatusBadRequest, apperrors.TypeInvalidArgument},
		{"not found", apperrors.NotFoundError("product not found"), http.StatusNotFound, apperrors.TypeNotFound},
		{"rate limited", apperrors.RateLimitedError(10, 0, 37), http.StatusTooManyRequests, apperrors.TypeRateLimited},
		{"storage", apperrors.StorageError("failed to record vote", errors.New("disk full")), http.StatusServiceUnavailable, apperrors.TypeStorage},
		{"unstructured", errors.New("boom"), http.StatusInternalServerError, apperrors.TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &mockAppService{
				castVoteFn: func(context.Context, app.CastVoteRequest) (*app.CastVoteResult, error) {
					return nil, tt.err
				},
			})

			req := httptest.NewRequest(http.MethodPost, "/api/votes", strings.NewReader(`{"productId":"p1","voteType":1}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			srv.echo.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)
		})
	}
}

func TestHandleCastVote_RateLimitedHeaders(t *testing.T) {
	srv := newTestServer(t, &mockAppService{
		castVoteFn: func(context.Context, app.CastVoteRequest) (*app.CastVoteResult, error) {
			return nil, apperrors.RateLimitedError(10, 0, 37)
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/votes", strings.NewReader(`{"productId":"p1","voteType":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "37", rec.Header().Get("Retry-After"))
	assert.Equal(t, "10", rec.Header().Get("RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "37", rec.Header().Get("RateLimit-Reset"))
	assert.JSONEq(t,
		`{"error":"rate limit exceeded","type":"rate_limited","context":{"limit":10,"remaining":0,"resetInSeconds":37}}`,
		rec.Body.String())
}

func TestHandleRanking(t *testing.T) {
	var gotLimit int
	srv := newTestServer(t, &mockAppService{
		rankingFn: func(_ context.Context, req app.RankingRequest) ([]domain.Aggregate, error) {
			gotLimit = req.Limit
			return []domain.Aggregate{
				{ProductID: "p2", Upvotes: 5, Downvotes: 1},
				{ProductID: "p1", Upvotes: 1, Downvotes: 0},
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking?limit=2", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, gotLimit)
	assert.JSONEq(t,
		`[{"productId":"p2","upvotes":5,"downvotes":1,"score":4},{"productId":"p1","upvotes":1,"downvotes":0,"score":1}]`,
		rec.Body.String())
}

func TestHandleRanking_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	req := httptest.NewRequest(http.MethodGet, "/api/ranking", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandleRanking_InvalidLimit(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/ranking?limit="+raw, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		srv := newTestServer(t, &mockAppService{})

		err := callHandler(srv.handleRanking, c)

		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
}
