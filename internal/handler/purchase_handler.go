package handler

import (
	"net/http"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/middleware"
	"github.com/grachmannico95/residue-market-be/internal/service"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type createPurchaseRequest struct {
	PanchayatID    string          `json:"panchayat_id" validate:"required"`
	CropType       string          `json:"crop_type" validate:"required,crop_type"`
	DisposalMethod string          `json:"disposal_method" validate:"required,disposal_method"`
	Quantity       decimal.Decimal `json:"quantity" validate:"gt=0"`
}

type PurchaseHandler struct {
	service service.SettlementService
	logger  *logger.Logger
}

func NewPurchaseHandler(service service.SettlementService, log *logger.Logger) *PurchaseHandler {
	return &PurchaseHandler{
		service: service,
		logger:  log,
	}
}

func (h *PurchaseHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	buyer := middleware.IdentityFrom(c)

	// Identity is checked before the body so anonymous callers learn nothing.
	if buyer.UserID == "" {
		return respondError(c, h.logger, domain.ErrUnauthorized)
	}

	var req createPurchaseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.service.Purchase(ctx, buyer, service.PurchaseRequest{
		OfferKey: domain.OfferKey{
			PanchayatID:    req.PanchayatID,
			CropType:       domain.CropType(req.CropType),
			DisposalMethod: domain.DisposalMethod(req.DisposalMethod),
		},
		Quantity: req.Quantity,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusCreated, result)
}

func (h *PurchaseHandler) List(c echo.Context) error {
	purchases, err := h.service.ListPurchases(c.Request().Context(), middleware.IdentityFrom(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": purchases,
		"total": len(purchases),
	})
}

func (h *PurchaseHandler) Get(c echo.Context) error {
	result, err := h.service.GetPurchase(c.Request().Context(), middleware.IdentityFrom(c), c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, result)
}
