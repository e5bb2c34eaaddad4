package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/offthaspin/renting/internal/engine"
)

// SimulateHandler triggers a fabricated confirmation for a known tenant so
// the full pipeline can be exercised without real money. Unlike the webhook
// endpoints the caller is a developer, so it gets real HTTP status codes
// instead of the provider ack protocol.
type SimulateHandler struct {
	engine    *engine.Reconciler
	shortcode string
	timeout   time.Duration
}

func NewSimulateHandler(rec *engine.Reconciler, defaultShortCode string, timeout time.Duration) *SimulateHandler {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &SimulateHandler{engine: rec, shortcode: defaultShortCode, timeout: timeout}
}

type simulateRequest struct {
	TenantID int64           `json:"tenant_id"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *SimulateHandler) Simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.TenantID <= 0 || !req.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and a positive amount are required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	out := h.engine.Simulate(ctx, req.TenantID, req.Amount, h.shortcode)
	switch out.State {
	case engine.StateCreated:
		c.JSON(http.StatusOK, gin.H{
			"status":         "recorded",
			"payment_id":     out.Payment.ID,
			"transaction_id": out.Payment.TransactionID,
			"tenant_id":      out.Tenant.ID,
			"balance":        out.Balance.Balance.StringFixed(2),
		})
	case engine.StateTenantNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "tenant not found"})
	case engine.StateStorageError:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
	default:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": string(out.State)})
	}
}
