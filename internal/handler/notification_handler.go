package handler

import (
	"net/http"

	"github.com/grachmannico95/residue-market-be/internal/middleware"
	"github.com/grachmannico95/residue-market-be/internal/service"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
)

type NotificationHandler struct {
	service service.NotificationService
	logger  *logger.Logger
}

func NewNotificationHandler(service service.NotificationService, log *logger.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  log,
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	notes, err := h.service.ListNotifications(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": notes,
		"total": len(notes),
	})
}
