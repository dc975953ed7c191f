package handler

import (
	"net/http"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/service"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
)

type OfferHandler struct {
	service service.OfferService
	logger  *logger.Logger
}

func NewOfferHandler(service service.OfferService, log *logger.Logger) *OfferHandler {
	return &OfferHandler{
		service: service,
		logger:  log,
	}
}

// List serves the aggregation view, optionally narrowed by panchayat_id,
// crop_type and disposal_method.
func (h *OfferHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	filter := domain.ListingFilter{
		PanchayatID:    c.QueryParam("panchayat_id"),
		CropType:       domain.CropType(c.QueryParam("crop_type")),
		DisposalMethod: domain.DisposalMethod(c.QueryParam("disposal_method")),
	}

	if filter.CropType != "" && !filter.CropType.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unknown crop_type",
		})
	}
	if filter.DisposalMethod != "" && !filter.DisposalMethod.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unknown disposal_method",
		})
	}

	offers, err := h.service.ListOffers(ctx, filter)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": offers,
		"total": len(offers),
	})
}

func (h *OfferHandler) Get(c echo.Context) error {
	key := domain.OfferKey{
		PanchayatID:    c.Param("panchayat_id"),
		CropType:       domain.CropType(c.Param("crop_type")),
		DisposalMethod: domain.DisposalMethod(c.Param("disposal_method")),
	}

	offer, err := h.service.GetOffer(c.Request().Context(), key)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, offer)
}
