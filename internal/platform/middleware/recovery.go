package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fertility/cds/internal/platform/auth"
)

// PanicObserver is notified of every recovered panic, keyed by route
// template.
type PanicObserver interface {
	ObservePanic(route string)
}

// Recovery converts a handler panic into a 500. The panic value and stack
// go to the log with the route and caller; the client only sees a generic
// message. http.ErrAbortHandler is re-raised so net/http can drop the
// connection.
func Recovery(logger zerolog.Logger, observers ...PanicObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				route := c.Path()
				if route == "" {
					route = c.Request().URL.Path
				}
				for _, o := range observers {
					o.ObservePanic(route)
				}

				logger.Error().
					Str("request_id", requestID(c)).
					Str("method", c.Request().Method).
					Str("route", route).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Bool("committed", c.Response().Committed).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panic")

				if c.Response().Committed {
					err = nil
					return
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error").
					SetInternal(fmt.Errorf("panic in %s: %v", route, r))
			}()
			return next(c)
		}
	}
}
