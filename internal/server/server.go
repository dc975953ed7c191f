package server

import (
	"context"
	"fmt"

	"github.com/grachmannico95/residue-market-be/internal/config"
	"github.com/grachmannico95/residue-market-be/internal/handler"
	"github.com/grachmannico95/residue-market-be/internal/middleware"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo                *echo.Echo
	cfg                 *config.Config
	logger              *logger.Logger
	offerHandler        *handler.OfferHandler
	listingHandler      *handler.ListingHandler
	purchaseHandler     *handler.PurchaseHandler
	notificationHandler *handler.NotificationHandler
	healthHandler       *handler.HealthHandler
}

func New(
	cfg *config.Config,
	log *logger.Logger,
	offerHandler *handler.OfferHandler,
	listingHandler *handler.ListingHandler,
	purchaseHandler *handler.PurchaseHandler,
	notificationHandler *handler.NotificationHandler,
	healthHandler *handler.HealthHandler,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	return &Server{
		echo:                e,
		cfg:                 cfg,
		logger:              log,
		offerHandler:        offerHandler,
		listingHandler:      listingHandler,
		purchaseHandler:     purchaseHandler,
		notificationHandler: notificationHandler,
		healthHandler:       healthHandler,
	}
}

func (s *Server) Start() error {
	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)
	s.logger.Info(context.Background(), "Starting HTTP server",
		"address", addr,
	)

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echoMiddleware.Recover())
	s.echo.Use(echoMiddleware.CORS())
	s.echo.Use(echoMiddleware.BodyLimit("10M"))
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.Logging(s.logger))
	s.echo.Use(middleware.Auth(s.cfg.Auth.JWTSecret, s.logger))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthHandler.Check)

	s.echo.GET("/offers", s.offerHandler.List)
	s.echo.GET("/offers/:panchayat_id/:crop_type/:disposal_method", s.offerHandler.Get)

	s.echo.POST("/listings", s.listingHandler.Create)
	s.echo.GET("/listings", s.listingHandler.List)
	s.echo.POST("/listings/import", s.listingHandler.Import)
	s.echo.POST("/listings/:id/verification", s.listingHandler.Verify)

	s.echo.POST("/purchases", s.purchaseHandler.Create)
	s.echo.GET("/purchases", s.purchaseHandler.List)
	s.echo.GET("/purchases/:id", s.purchaseHandler.Get)

	s.echo.GET("/notifications", s.notificationHandler.List)
}

func (s *Server) Handler() *echo.Echo {
	s.setupMiddleware()
	s.setupRoutes()
	return s.echo
}
