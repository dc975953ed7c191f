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

type createListingRequest struct {
	CropType       string              `json:"crop_type" validate:"required,crop_type"`
	DisposalMethod string              `json:"disposal_method" validate:"required,disposal_method"`
	Quantity       decimal.Decimal     `json:"quantity" validate:"gt=0"`
	PricePerUnit   decimal.NullDecimal `json:"price_per_unit"`
}

type verifyListingRequest struct {
	Decision string `json:"decision" validate:"required,decision"`
}

type ListingHandler struct {
	service service.ListingService
	logger  *logger.Logger
}

func NewListingHandler(service service.ListingService, log *logger.Logger) *ListingHandler {
	return &ListingHandler{
		service: service,
		logger:  log,
	}
}

func (h *ListingHandler) Create(c echo.Context) error {
	farmer := middleware.IdentityFrom(c)
	if farmer.UserID == "" {
		return respondError(c, h.logger, domain.ErrUnauthorized)
	}

	var req createListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, h.logger, err)
	}

	listing, err := h.service.CreateListing(c.Request().Context(), farmer, service.CreateListingRequest{
		CropType:       domain.CropType(req.CropType),
		DisposalMethod: domain.DisposalMethod(req.DisposalMethod),
		Quantity:       req.Quantity,
		PricePerUnit:   req.PricePerUnit,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusCreated, listing)
}

func (h *ListingHandler) List(c echo.Context) error {
	filter := domain.ListingFilter{
		CropType:           domain.CropType(c.QueryParam("crop_type")),
		DisposalMethod:     domain.DisposalMethod(c.QueryParam("disposal_method")),
		Status:             domain.ListingStatus(c.QueryParam("status")),
		VerificationStatus: domain.VerificationStatus(c.QueryParam("verification_status")),
	}

	listings, err := h.service.ListListings(c.Request().Context(), middleware.IdentityFrom(c), filter)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"items": listings,
		"total": len(listings),
	})
}

func (h *ListingHandler) Verify(c echo.Context) error {
	official := middleware.IdentityFrom(c)
	if official.UserID == "" {
		return respondError(c, h.logger, domain.ErrUnauthorized)
	}

	var req verifyListingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, h.logger, err)
	}

	listing, err := h.service.VerifyListing(c.Request().Context(), official, c.Param("id"), domain.VerificationStatus(req.Decision))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, listing)
}

// Import accepts a multipart "file" field holding the listing CSV.
func (h *ListingHandler) Import(c echo.Context) error {
	ctx := c.Request().Context()
	official := middleware.IdentityFrom(c)
	if official.UserID == "" {
		return respondError(c, h.logger, domain.ErrUnauthorized)
	}

	file, err := c.FormFile("file")
	if err != nil {
		h.logger.Warn(ctx, "Failed to get file from request",
			"error", err,
		)
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "file is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		h.logger.Error(ctx, "Failed to open file",
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to open file",
		})
	}
	defer src.Close()

	report, err := h.service.ImportListings(ctx, official, src)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, report)
}
