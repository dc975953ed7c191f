package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

// NewHealthHandler reports the process as healthy; with a non-nil db the
// database must answer a ping as well.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(c echo.Context) error {
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = "unreachable"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["database"] = "ok"
	}

	return c.JSON(http.StatusOK, body)
}
