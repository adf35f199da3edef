// Package gateway exposes the storefront services over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/storefront/pkg/audit"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Services are the workflows the gateway routes to.
type Services struct {
	Auth     *service.AuthService
	Products service.ProductService
	Carts    *service.CartService
	Orders   *service.OrderService
	Payments *service.PaymentService
	Webhooks *service.WebhookService
	Audit    audit.Recorder
	Metrics  *metrics.Metrics

	// Checks are probed by /health, keyed by dependency name.
	Checks map[string]func(context.Context) error
}

type Gateway struct {
	config *config.ServerConfig
	svc    Services
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
}

func NewGateway(cfg *config.ServerConfig, svc Services, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	if svc.Audit == nil {
		svc.Audit = audit.NopRecorder{}
	}
	if svc.Metrics == nil {
		svc.Metrics = metrics.New()
	}

	g := &Gateway{
		config: cfg,
		svc:    svc,
		logger: logger.Named("gateway"),
		router: router,
	}
	g.SetupRoutes()
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", g.health)
	g.router.GET("/metrics", gin.WrapH(g.svc.Metrics.Handler()))

	v1 := g.router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", g.register)
			authGroup.POST("/login", g.login)
			authGroup.POST("/forgot-password", g.forgotPassword)
			authGroup.POST("/reset-password", g.resetPassword)
			authGroup.GET("/me", g.authRequired(), g.me)
			authGroup.PUT("/me", g.authRequired(), g.updateMe)
		}

		products := v1.Group("/products")
		{
			products.GET("", g.listProducts)
			products.GET("/:id", g.getProduct)
			products.POST("", g.authRequired(), g.requireRole(models.RoleAdmin), g.createProduct)
			products.PUT("/:id", g.authRequired(), g.requireRole(models.RoleAdmin), g.updateProduct)
		}

		categories := v1.Group("/categories")
		{
			categories.GET("", g.listCategories)
			categories.GET("/:id/products", g.listCategoryProducts)
			categories.POST("", g.authRequired(), g.requireRole(models.RoleAdmin), g.createCategory)
		}

		cart := v1.Group("/cart", g.authRequired())
		{
			cart.GET("", g.getCart)
			cart.DELETE("", g.clearCart)
			cart.POST("/items", g.addCartItem)
			cart.PUT("/items/:id", g.updateCartItem)
			cart.DELETE("/items/:id", g.removeCartItem)
		}

		orders := v1.Group("/orders", g.authRequired())
		{
			orders.POST("", g.createOrder)
			orders.GET("", g.listOrders)
			orders.GET("/:id", g.getOrder)
			orders.PATCH("/:id/status", g.requireRole(models.RoleAdmin), g.updateOrderStatus)
		}

		payments := v1.Group("/payments")
		{
			// called by the provider, authenticated by signature only
			payments.POST("/stripe/webhook", g.stripeWebhook)
			payments.GET("/stripe/callback", g.stripeCallback)
			payments.GET("/config", g.paymentConfig)

			payments.POST("", g.authRequired(), g.createPayment)
			payments.POST("/intents", g.authRequired(), g.createPaymentIntent)
			payments.GET("/:id", g.authRequired(), g.getPayment)
		}

		admin := v1.Group("/admin", g.authRequired(), g.requireRole(models.RoleAdmin))
		{
			admin.GET("/audit/:entity_id", g.auditHistory)
		}
	}

	// Swagger
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

// Start serves until Shutdown is called.
func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Host, g.config.Port)
	g.server = &http.Server{
		Addr:              addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("Gateway starting", zap.String("address", addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve http: %w", err)
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func (g *Gateway) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(g.svc.Checks))
	for name, check := range g.svc.Checks {
		if err := check(ctx); err != nil {
			g.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	text := "ok"
	if status != http.StatusOK {
		text = "degraded"
	}
	c.JSON(status, gin.H{"status": text, "checks": checks})
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
