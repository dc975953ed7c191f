package middleware

import (
	"time"

	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
)

func Logging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []interface{}{
				"method", c.Request().Method,
				"route", c.Path(),
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", c.RealIP(),
			}
			if role := IdentityFrom(c).Role; role != "" {
				fields = append(fields, "role", role)
			}

			if c.Response().Status >= 500 {
				log.Error(c.Request().Context(), "HTTP request", fields...)
			} else {
				log.Info(c.Request().Context(), "HTTP request", fields...)
			}

			return nil
		}
	}
}
