package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

const testRemoteAddr = "1.2.3.4:1234"

func throttled(ratePerSecond float64, burst int) echo.HandlerFunc {
	mw := newRateLimiter(ratePerSecond, burst)
	return ErrorHandlingMiddleware()(mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}))
}

func serve(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func TestRateLimiterAllowsRequestsUnderLimit(t *testing.T) {
	handler := throttled(10, 3) // 10 req/s, burst 3

	for range 3 {
		rec := serve(t, handler, testRemoteAddr)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiterBlocksExcessiveRequests(t *testing.T) {
	handler := throttled(0.25, 1) // one token every 4s, burst 1

	rec := serve(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "4", rec.Header().Get("Retry-After"))

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.TypeRateLimited, resp.Type)
	assert.Equal(t, "rate limit exceeded", resp.Error)
}

func TestRateLimiterDifferentIPsAreIndependent(t *testing.T) {
	handler := throttled(0.01, 1)

	assert.Equal(t, http.StatusOK, serve(t, handler, testRemoteAddr).Code)
	assert.Equal(t, http.StatusOK, serve(t, handler, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, handler, testRemoteAddr).Code)
}
