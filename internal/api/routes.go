// Package api wires the HTTP operator surface onto an echo instance.
package api

import (
	"time"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/api/middleware"
	"auction-engine/internal/domain"
	"auction-engine/internal/identity"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

type Deps struct {
	Engine          *services.BiddingEngine
	Query           *services.QueryService
	Identity        *identity.Service
	DefaultDuration time.Duration
	Log             logger.Logger
}

func RegisterRoutes(e *echo.Echo, d Deps) {
	authHandler := handlers.NewAuthHandler(d.Identity, d.Log)
	lotHandler := handlers.NewLotHandler(d.Engine, d.Query, d.DefaultDuration, d.Log)

	v1 := e.Group("/api/v1")
	v1.POST("/auth/register", authHandler.Register)
	v1.POST("/auth/login", authHandler.Login)

	v1.GET("/lots", lotHandler.ListOpen)
	v1.GET("/lots/leading", lotHandler.Leading)
	v1.GET("/lots/history", lotHandler.History)
	v1.GET("/lots/:id", lotHandler.GetLot)
	v1.GET("/lots/:id/top-bidders", lotHandler.TopBidders)

	auth := middleware.JWTAuth(d.Identity)
	v1.POST("/lots", lotHandler.CreateLot, auth, middleware.RequireRole(domain.RoleSeller))
	v1.POST("/lots/:id/bids", lotHandler.PlaceBid, auth, middleware.RequireRole(domain.RoleBuyer))
}
