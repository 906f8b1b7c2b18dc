package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/schatha/stamford-parking-system-sub001/config"
	"github.com/schatha/stamford-parking-system-sub001/internal/transport/middleware"
)

type Handlers struct {
	Zone    *ZoneHandler
	Session *SessionHandler
	Admin   *AdminHandler
	Webhook *WebhookHandler
}

func InitRoutes(cfg *config.Config, h Handlers) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	api := router.Group("/api/v1")
	{
		zones := api.Group("/zones")
		{
			zones.GET("", h.Zone.ListZones)
			zones.GET("/:number", h.Zone.GetZone)
			zones.GET("/:number/restrictions", h.Zone.CheckRestrictions)
			zones.GET("/:number/availability", h.Zone.NextAvailable)
			zones.POST("/:number/estimate", h.Zone.EstimateCost)
		}

		sessions := api.Group("/sessions", middleware.Auth(cfg.JWT.Secret))
		{
			sessions.POST("", h.Session.CreateSession)
			sessions.GET("", h.Session.GetUserSessions)
			sessions.GET("/:id", h.Session.GetSession)
			sessions.POST("/:id/confirm", h.Session.ConfirmPayment)
			sessions.POST("/:id/extend", h.Session.ExtendSession)
			sessions.POST("/:id/terminate", h.Session.TerminateSession)
		}

		admin := api.Group("/admin", middleware.Auth(cfg.JWT.Secret), middleware.RequireRole(cfg.JWT.AdminRole))
		{
			admin.GET("/sessions", h.Admin.ListSessions)
			admin.POST("/sweep", h.Admin.Sweep)
			admin.GET("/events/failed", h.Admin.FailedEvents)
		}
	}

	router.POST("/webhooks/stripe", h.Webhook.Stripe)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": cfg.Server.AppVersion,
			"time":    time.Now().UTC(),
		})
	})

	return router
}
