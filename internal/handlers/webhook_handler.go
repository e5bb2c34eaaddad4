// Package handlers is the webhook protocol adapter: it translates the
// provider's payload shapes into a normalized IncomingPayment and the
// engine's outcome back into the provider's narrow ack vocabulary.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/engine"
	"github.com/offthaspin/renting/internal/telemetry"
)

type WebhookHandler struct {
	engine  *engine.Reconciler
	timeout time.Duration
}

func NewWebhookHandler(rec *engine.Reconciler, timeout time.Duration) *WebhookHandler {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &WebhookHandler{engine: rec, timeout: timeout}
}

func ack(c *gin.Context, code int, desc string) {
	c.JSON(http.StatusOK, gin.H{"ResultCode": code, "ResultDesc": desc})
}

// Validate answers the provider's pre-payment check. This is the one path
// where rejecting is allowed: no money has moved yet.
func (h *WebhookHandler) Validate(c *gin.Context) {
	raw, err := decodeBody(c.Request.Body)
	if err != nil {
		ack(c, 1, "Invalid payload")
		return
	}

	ref := pick(raw, "billrefnumber", "accountreference", "billref")
	shortcode := pick(raw, "businessshortcode", "shortcode")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	ok, err := h.engine.Validate(ctx, ref, shortcode, ownerParam(c))
	if err != nil {
		telemetry.Logger.Error("validation failed on storage",
			zap.String("account_reference", ref), zap.Error(err))
		ack(c, 1, "Validation Error")
		return
	}
	if !ok {
		telemetry.Logger.Warn("validation rejected",
			zap.String("account_reference", ref))
		ack(c, 1, "Invalid tenant reference")
		return
	}
	ack(c, 0, "Validation Passed")
}

// Confirm records a completed payment. Money has already moved, so every
// internal failure except an unavailable store is acked as success and left
// for manual reconciliation; a non-zero code here would put the provider
// into endless retries.
func (h *WebhookHandler) Confirm(c *gin.Context) {
	raw, err := decodeBody(c.Request.Body)
	if err != nil {
		telemetry.Logger.Warn("unreadable confirmation payload", zap.Error(err))
		ack(c, 0, "Accepted")
		return
	}

	in := buildIncomingPayment(raw)
	in.OwnerID = ownerParam(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	out := h.engine.Confirm(ctx, in)
	switch out.State {
	case engine.StateCreated:
		ack(c, 0, "Payment recorded")
	case engine.StateDuplicate:
		ack(c, 0, "Duplicate transaction ignored")
	case engine.StateStorageError:
		// The only legitimate non-zero confirm ack: nothing was written,
		// so a provider retry is safe and wanted.
		ack(c, 1, "Temporary storage failure")
	default:
		ack(c, 0, "Accepted")
	}
}

func ownerParam(c *gin.Context) int64 {
	raw := c.Param("owner_id")
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}
