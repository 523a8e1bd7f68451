package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront/config"
	"storefront/internal/nonce"
	"storefront/internal/service"
	"storefront/internal/session"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	cart         *service.CartService
	discounts    *service.DiscountService
	checkout     *service.CheckoutService
	receipts     *service.ReceiptService
	sessions     session.Store
	nonces       *nonce.Manager
	sessionCfg   config.SessionConfig
	checkoutPath string
	checks       map[string]Pinger
	logger       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cart *service.CartService,
	discounts *service.DiscountService,
	checkout *service.CheckoutService,
	receipts *service.ReceiptService,
	sessions session.Store,
	nonces *nonce.Manager,
	cfg *config.Config,
) *Handler {
	return &Handler{
		cart:         cart,
		discounts:    discounts,
		checkout:     checkout,
		receipts:     receipts,
		sessions:     sessions,
		nonces:       nonces,
		sessionCfg:   cfg.Session,
		checkoutPath: cfg.Shop.CheckoutPath,
		checks:       make(map[string]Pinger),
		logger:       util.Named("api"),
	}
}

// AddHealthCheck registers a dependency for the readiness check
func (h *Handler) AddHealthCheck(name string, p Pinger) {
	h.checks[name] = p
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	shop := router.Group("/", h.sessionMiddleware())
	shop.POST(h.checkoutPath, h.purchase)

	v1 := router.Group("/api/v1", h.sessionMiddleware())
	{
		v1.GET("/downloads", h.listDownloads)
		v1.GET("/cart", h.getCart)
		v1.GET("/checkout", h.getCheckout)
		v1.GET("/purchases/:key", h.getReceipt)

		ajax := v1.Group("", h.requireAjaxNonce())
		ajax.POST("/cart/items", h.addToCart)
		ajax.DELETE("/cart/items/:key", h.removeFromCart)
		ajax.POST("/cart/remove", h.removeFromCartAt)
		ajax.DELETE("/cart", h.emptyCart)
		ajax.POST("/cart/discount", h.applyDiscount)
		ajax.DELETE("/cart/discount", h.removeDiscount)
		ajax.POST("/cart/fees", h.addFee)
		ajax.DELETE("/cart/fees/:id", h.removeFee)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once every registered dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
