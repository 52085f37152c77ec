package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/votepulse/internal/domain"
	"github.com/pscheid92/votepulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/votepulse/internal/platform/errors"
)

const (
	headerRetryAfter         = "Retry-After"
	headerRateLimitLimit     = "RateLimit-Limit"
	headerRateLimitRemaining = "RateLimit-Remaining"
	headerRateLimitReset     = "RateLimit-Reset"
)

// correlationMiddleware reuses a well-formed inbound X-Correlation-ID or mints one,
// stores it on the request context and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if structuredErr.Type == apperrors.TypeRateLimited {
				setRetryHeaders(c, structuredErr)
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeInvalidArgument:
		slog.InfoContext(ctx, "Invalid argument", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeStorage:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Storage error", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func setRetryHeaders(c echo.Context, err *apperrors.Error) {
	h := c.Response().Header()
	if limit, ok := err.IntField("limit"); ok {
		h.Set(headerRateLimitLimit, strconv.Itoa(limit))
	}
	if remaining, ok := err.IntField("remaining"); ok {
		h.Set(headerRateLimitRemaining, strconv.Itoa(remaining))
	}
	if reset, ok := err.IntField("resetInSeconds"); ok {
		h.Set(headerRateLimitReset, strconv.Itoa(reset))
		h.Set(headerRetryAfter, strconv.Itoa(reset))
	}
}

func setRateLimitHeaders(c echo.Context, d domain.RateDecision) {
	if d.Limit == 0 {
		return
	}
	h := c.Response().Header()
	h.Set(headerRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(headerRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(headerRateLimitReset, strconv.Itoa(d.ResetInSeconds()))
}
