// Package api exposes the order engine over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/orders"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/retry"
)

// UserIDHeader carries the caller identity set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// OrderService is what the handlers need from the order placement service.
type OrderService interface {
	CheckRateLimit(ctx context.Context, userID string) error
	PlaceOrder(ctx context.Context, req orders.CreateOrderRequest) (models.Order, error)
	CancelOrder(ctx context.Context, orderID, userID string) (models.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (models.Order, error)
	ListOrders(ctx context.Context, userID string, filter models.OrderFilter) ([]models.Order, error)
	GetPortfolio(ctx context.Context, userID string) (models.Portfolio, error)
	OpenPortfolio(ctx context.Context, userID string, initialCash decimal.Decimal) (models.Portfolio, error)
	QueryAudit(ctx context.Context, query models.AuditQuery) (models.AuditPage, error)
}

// Config holds router settings.
type Config struct {
	// AuditToken, when set, is required as a bearer token on /audit.
	AuditToken string
	// Retry governs transparent retries of lock timeouts on writes.
	Retry  retry.Config
	Logger *slog.Logger
}

// Handler serves the HTTP API.
type Handler struct {
	service    OrderService
	auditToken string
	retry      retry.Config
	logger     *slog.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(service OrderService, cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Retry == (retry.Config{}) {
		cfg.Retry = retry.DefaultConfig()
	}
	h := &Handler{
		service:    service,
		auditToken: cfg.AuditToken,
		retry:      cfg.Retry,
		logger:     cfg.Logger.With("component", "api"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	user := r.Group("/", h.requireUser())
	user.POST("/orders", h.PlaceOrder)
	user.GET("/orders", h.ListOrders)
	user.GET("/orders/:id", h.GetOrder)
	user.POST("/orders/:id/cancel", h.CancelOrder)
	user.GET("/portfolio", h.GetPortfolio)
	user.POST("/portfolio", h.OpenPortfolio)

	r.GET("/audit", h.requireAuditToken(), h.QueryAudit)
	return r
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"user_id", c.GetHeader(UserIDHeader),
			"duration", time.Since(start))
	}
}

func (h *Handler) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": UserIDHeader + " header is required",
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *Handler) requireAuditToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.auditToken == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.auditToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "a valid compliance token is required",
			})
			return
		}
		c.Next()
	}
}
