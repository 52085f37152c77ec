package httpserver

import (
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter is a coarse per-IP token bucket in front of the whole API. It is
// independent of the per-class vote and status windows enforced by the service.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := int(math.Ceil(1 / ratePerSecond))

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set(headerRetryAfter, strconv.Itoa(retryAfter))
			return apperrors.RateLimitedError(burst, 0, retryAfter)
		},
	})
}
