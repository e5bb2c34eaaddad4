// Package ledger owns the two money-facing pieces of the engine: the
// idempotent payment writer and the balance projector.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/interfaces"
	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/telemetry"
)

// RecordResult reports the outcome of a write attempt. Duplicate is not an
// error: the provider retries confirmations, and a replayed transaction id
// must be acknowledged as success without a second row or a second SMS.
type RecordResult struct {
	Payment   *models.Payment
	Duplicate bool
}

type Writer struct {
	store interfaces.Store
}

func NewWriter(store interfaces.Store) *Writer {
	return &Writer{store: store}
}

// Record persists the payment exactly once per transaction id. The
// check-and-insert is atomic in the store (unique constraint), so concurrent
// deliveries of the same confirmation collapse to one Created and the rest
// Duplicate.
func (w *Writer) Record(ctx context.Context, tenant *models.Tenant, in models.IncomingPayment) (RecordResult, error) {
	if err := in.Validate(); err != nil {
		return RecordResult{}, err
	}

	p := &models.Payment{
		ID:            uuid.New().String(),
		TenantID:      tenant.ID,
		TransactionID: in.TransactionID,
		Amount:        in.Amount,
		PaidAt:        time.Now().UTC(),
		Note:          fmt.Sprintf("M-Pesa rent payment from %s", in.MSISDN),
	}

	created, err := w.store.InsertPayment(ctx, p)
	if err != nil {
		return RecordResult{}, fmt.Errorf("insert payment: %w", err)
	}
	if !created {
		telemetry.Logger.Info("duplicate transaction ignored",
			zap.String("transaction_id", in.TransactionID),
			zap.Int64("tenant_id", tenant.ID))
		return RecordResult{Duplicate: true}, nil
	}

	return RecordResult{Payment: p}, nil
}
