package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/ledger"
	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/telemetry"
)

const (
	// SubjectPayments carries every recorded payment; owner-scoped updates
	// go out on SubjectPayments + "." + ownerID.
	SubjectPayments = "dashboard.payments"
)

// Dispatcher fans a recorded payment out to SMS and the realtime bus.
// Everything here is fire-and-forget: failures are logged, never propagated,
// and nothing blocks the webhook acknowledgement path.
type Dispatcher struct {
	sms     SMSSender
	bus     RealtimeBus
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sms SMSSender, bus RealtimeBus, timeout time.Duration) *Dispatcher {
	if sms == nil {
		sms = NoopSMS{}
	}
	if bus == nil {
		bus = NoopBus{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{sms: sms, bus: bus, timeout: timeout}
}

type paymentUpdate struct {
	TenantID   int64  `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	OwnerID    int64  `json:"owner_id"`
	Amount     string `json:"amount"`
	TransID    string `json:"trans_id"`
	TotalPaid  string `json:"new_total_paid"`
	Balance    string `json:"new_balance"`
}

// Dispatch runs asynchronously and only ever after a Created write; the
// caller must not invoke it for duplicates, or provider retries would send
// repeat notifications.
func (d *Dispatcher) Dispatch(tenant *models.Tenant, payment *models.Payment, balance ledger.Balance) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				telemetry.Logger.Error("notification dispatch panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		text := fmt.Sprintf(
			"Dear %s, payment of Ksh %s for House %s received. Balance: Ksh %s.",
			tenant.Name, payment.Amount.StringFixed(2), tenant.HouseNo, balance.Balance.StringFixed(2),
		)
		if err := d.sms.Send(ctx, tenant.Phone, text); err != nil {
			telemetry.Logger.Warn("sms send failed",
				zap.Int64("tenant_id", tenant.ID),
				zap.String("transaction_id", payment.TransactionID),
				zap.Error(err))
		}

		update := paymentUpdate{
			TenantID:   tenant.ID,
			TenantName: tenant.Name,
			OwnerID:    tenant.OwnerID,
			Amount:     payment.Amount.StringFixed(2),
			TransID:    payment.TransactionID,
			TotalPaid:  balance.TotalPaid.StringFixed(2),
			Balance:    balance.Balance.StringFixed(2),
		}
		for _, subject := range []string{SubjectPayments, fmt.Sprintf("%s.%d", SubjectPayments, tenant.OwnerID)} {
			if err := d.bus.Publish(subject, update); err != nil {
				telemetry.Logger.Warn("realtime publish failed",
					zap.String("subject", subject),
					zap.String("transaction_id", payment.TransactionID),
					zap.Error(err))
			}
		}
	}()
}

// Drain waits for in-flight notifications; called on shutdown and by tests.
func (d *Dispatcher) Drain() {
	d.wg.Wait()
}
