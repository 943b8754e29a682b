package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ksh277/Travleap-sub004/internal/adapter/realtime"
	"github.com/ksh277/Travleap-sub004/internal/auth"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

// NewRouter assembles the HTTP surface: booking endpoints (mutating ones
// behind the idempotency middleware), the websocket upgrade and the
// operational endpoints.
func NewRouter(
	bookings *BookingHandler,
	idemp port.IdempotencyStore,
	hub *realtime.Hub,
	verifier *auth.Verifier,
	log *logger.Logger,
	idempotencyTTL time.Duration,
	dev bool,
) *gin.Engine {
	if !dev {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(MetricsMiddleware())
	router.Use(AuthMiddleware(verifier))

	idempotent := IdempotencyMiddleware(idemp, log, idempotencyTTL)

	api := router.Group("/api")
	{
		api.POST("/bookings", idempotent, bookings.CreateBooking)
		api.GET("/bookings/:number", bookings.GetBooking)
		api.POST("/bookings/:number/confirm", bookings.ConfirmBooking)
		api.POST("/bookings/:number/cancel", idempotent, bookings.CancelBooking)
	}

	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWS(hub, verifier, log, c.Writer, c.Request)
	})

	router.GET("/health", bookings.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
