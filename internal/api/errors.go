package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sheikh-saqib/portfolio-order-ledger/internal/models"
)

var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrValidation, http.StatusBadRequest, "validation_error"},
	{models.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{models.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{models.ErrPriceUnavailable, http.StatusServiceUnavailable, "price_unavailable"},
	{models.ErrConcurrencyTimeout, http.StatusServiceUnavailable, "concurrency_timeout"},
	{models.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{models.ErrPortfolioNotFound, http.StatusNotFound, "portfolio_not_found"},
	{models.ErrPortfolioExists, http.StatusConflict, "portfolio_exists"},
	{models.ErrOrderNotCancellable, http.StatusConflict, "order_not_cancellable"},
	{models.ErrOrderStatusConflict, http.StatusConflict, "order_status_conflict"},
}

// writeError maps a service error to its HTTP status and JSON body.
// Anything unrecognised is logged and reported as a generic 500.
func (h *Handler) writeError(c *gin.Context, err error) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			if e.status == http.StatusTooManyRequests {
				c.Header("Retry-After", "1")
			}
			c.JSON(e.status, gin.H{"error": e.code, "message": err.Error()})
			return
		}
	}

	h.logger.Error("request failed",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"user_id", c.GetHeader(UserIDHeader),
		"error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "internal server error"})
}
