package middleware

import (
	"github.com/google/uuid"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
)

const HeaderTraceID = "X-Trace-ID"

// RequestID tags every request with a trace id, reusing the caller's when given.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			traceID := c.Request().Header.Get(HeaderTraceID)
			if traceID == "" {
				traceID = uuid.New().String()
			}

			ctx := logger.WithTraceID(c.Request().Context(), traceID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(HeaderTraceID, traceID)

			return next(c)
		}
	}
}
