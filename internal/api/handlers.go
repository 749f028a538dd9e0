package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/orders"
	"github.com/sheikh-saqib/portfolio-order-ledger/internal/retry"
)

type placeOrderRequest struct {
	TradingPair string           `json:"trading_pair"`
	OrderType   string           `json:"order_type"`
	Side        string           `json:"side"`
	Amount      decimal.Decimal  `json:"amount"`
	LimitPrice  *decimal.Decimal `json:"limit_price"`
	StopPrice   *decimal.Decimal `json:"stop_price"`
	TimeInForce string           `json:"time_in_force"`
}

type openPortfolioRequest struct {
	CashBalance decimal.Decimal `json:"cash_balance"`
}

func (h *Handler) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid order payload"})
		return
	}

	create := orders.CreateOrderRequest{
		UserID:      c.GetString(userIDKey),
		TradingPair: req.TradingPair,
		Type:        models.OrderType(req.OrderType),
		Side:        models.Side(req.Side),
		Amount:      req.Amount,
		LimitPrice:  req.LimitPrice,
		StopPrice:   req.StopPrice,
		TimeInForce: models.TimeInForce(req.TimeInForce),
	}
	ctx := c.Request.Context()
	if err := h.service.CheckRateLimit(ctx, create.UserID); err != nil {
		h.writeError(c, err)
		return
	}
	order, err := retry.Do(ctx, h.retry, retry.OnLockTimeout, h.onRetry("create"), func() (models.Order, error) {
		return h.service.PlaceOrder(ctx, create)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) CancelOrder(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.GetString(userIDKey)
	order, err := retry.Do(ctx, h.retry, retry.OnLockTimeout, h.onRetry("cancel"), func() (models.Order, error) {
		return h.service.CancelOrder(ctx, c.Param("id"), userID)
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.service.GetOrder(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) ListOrders(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	filter := models.OrderFilter{
		Status:      models.OrderStatus(c.Query("status")),
		TradingPair: c.Query("trading_pair"),
		Limit:       limit,
		Offset:      offset,
	}
	list, err := h.service.ListOrders(c.Request.Context(), c.GetString(userIDKey), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (h *Handler) GetPortfolio(c *gin.Context) {
	portfolio, err := h.service.GetPortfolio(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

func (h *Handler) OpenPortfolio(c *gin.Context) {
	var req openPortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid portfolio payload"})
		return
	}
	portfolio, err := h.service.OpenPortfolio(c.Request.Context(), c.GetString(userIDKey), req.CashBalance)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, portfolio)
}

func (h *Handler) QueryAudit(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	query := models.AuditQuery{
		UserID: c.Query("user_id"),
		Action: c.Query("action"),
		Limit:  limit,
		Offset: offset,
	}
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &query.From}, {"to", &query.To}} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": bound.name + " must be RFC3339"})
			return
		}
		*bound.dst = t
	}

	page, err := h.service.QueryAudit(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	entries := page.Entries
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "next_offset": page.NextOffset})
}

// pageParams reads limit and offset, writing a 400 when either is malformed.
func pageParams(c *gin.Context) (limit, offset int, ok bool) {
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := c.Query(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": p.name + " must be a non-negative integer"})
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

func (h *Handler) onRetry(op string) retry.OnRetryFunc {
	return func(attempt int, err error, backoff time.Duration) {
		h.logger.Warn("portfolio busy, retrying", "op", op, "attempt", attempt, "backoff", backoff)
	}
}
