package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/offthaspin/renting/internal/engine"
	"github.com/offthaspin/renting/internal/handlers"
	"github.com/offthaspin/renting/internal/telemetry"
)

func NewRouter(rec *engine.Reconciler, webhookTimeout time.Duration, defaultShortCode string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "renting"})
	})
	r.GET("/mpesa/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "renting"})
	})

	wh := handlers.NewWebhookHandler(rec, webhookTimeout)

	// The provider registers both the bare and the /api-prefixed paths.
	for _, prefix := range []string{"", "/api"} {
		g := r.Group(prefix)
		g.POST("/payment_callback/validate", wh.Validate)
		g.POST("/payment_callback/confirm", wh.Confirm)
	}

	// Owner-scoped URLs: the owner id is trusted, handed out only to
	// authenticated landlords when they register their callback.
	owners := r.Group("/owners/:owner_id")
	owners.POST("/payment_callback/validate", wh.Validate)
	owners.POST("/payment_callback/confirm", wh.Confirm)

	// Developer trigger: runs a fabricated confirmation through the full
	// pipeline. Deploys facing real traffic should keep it behind auth.
	sim := handlers.NewSimulateHandler(rec, defaultShortCode, webhookTimeout)
	r.POST("/simulate_payment", sim.Simulate)

	return r
}
