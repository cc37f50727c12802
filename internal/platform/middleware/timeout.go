package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout returns middleware that sets a context deadline on each
// incoming request. Handlers must honour the request context; when the
// deadline passes before they respond, 504 Gateway Timeout is returned.
//
// Requests whose path starts with one of skipPrefixes run without a deadline.
// File downloads stream for as long as the client reads.
func RequestTimeout(timeout time.Duration, skipPrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skipPrefixes {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			// The handler runs on the request goroutine; echo recycles the
			// context once this returns.
			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return gatewayTimeout(c)
			}
			return err
		}
	}
}

func gatewayTimeout(c echo.Context) error {
	// A handler that already started writing keeps its partial response.
	if c.Response().Committed {
		return nil
	}
	return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
}
