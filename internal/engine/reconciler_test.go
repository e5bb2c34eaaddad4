package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offthaspin/renting/internal/events"
	"github.com/offthaspin/renting/internal/ledger"
	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/notify"
	"github.com/offthaspin/renting/internal/repository"
	"github.com/offthaspin/renting/internal/resolve"
)

type countingSMS struct {
	mu   sync.Mutex
	sent int
}

func (c *countingSMS) Send(ctx context.Context, phone, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *countingSMS) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

type channelAudit struct {
	events chan events.PaymentRecorded
}

func (a *channelAudit) Publish(ctx context.Context, key string, event any) {
	if e, ok := event.(events.PaymentRecorded); ok {
		a.events <- e
	}
}

type fixture struct {
	store      *repository.MemoryStore
	reconciler *Reconciler
	sms        *countingSMS
	audit      *channelAudit
	tenant     *models.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	owner := store.AddOwner(models.Owner{Email: "a@landlords.co.ke", PaybillNumber: "512345"})
	tenant := store.AddTenant(models.Tenant{
		OwnerID:     owner.ID,
		Name:        "Alice Wanjiku",
		Phone:       "0712345678",
		HouseNo:     "A101",
		MonthlyRent: decimal.NewFromInt(10000),
		MoveInDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	sms := &countingSMS{}
	audit := &channelAudit{events: make(chan events.PaymentRecorded, 16)}
	dispatcher := notify.NewDispatcher(sms, notify.NoopBus{}, time.Second)
	resolver := resolve.NewResolver(store, "254")
	writer := ledger.NewWriter(store)

	return &fixture{
		store:      store,
		reconciler: NewReconciler(store, resolver, writer, dispatcher, audit, nil),
		sms:        sms,
		audit:      audit,
		tenant:     tenant,
	}
}

func confirmPayment(txID, ref string, amount int64) models.IncomingPayment {
	return models.IncomingPayment{
		TransactionID:    txID,
		Amount:           decimal.NewFromInt(amount),
		MSISDN:           "254712345678",
		AccountReference: ref,
	}
}

func (f *fixture) waitAudit(t *testing.T) events.PaymentRecorded {
	t.Helper()
	select {
	case e := <-f.audit.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return events.PaymentRecorded{}
	}
}

func TestConfirmRecordsPayment(t *testing.T) {
	f := newFixture(t)

	out := f.reconciler.Confirm(context.Background(), confirmPayment("QFG7X9K2", "512345#A101", 3000))
	if out.State != StateCreated {
		t.Fatalf("want %s, got %s (err %v)", StateCreated, out.State, out.Err)
	}
	if out.Tenant.ID != f.tenant.ID {
		t.Errorf("resolved tenant %d, want %d", out.Tenant.ID, f.tenant.ID)
	}
	if out.Strategy != resolve.StrategyHouseNo || out.LowConfidence {
		t.Errorf("want high-confidence house_no resolution, got %+v", out)
	}
	if !out.Balance.TotalPaid.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("projection must see the just-written payment, TotalPaid = %s", out.Balance.TotalPaid)
	}

	e := f.waitAudit(t)
	if e.TransactionID != "QFG7X9K2" || e.TenantID != f.tenant.ID {
		t.Errorf("audit event mismatch: %+v", e)
	}

	f.reconciler.Drain()
	if f.sms.count() != 1 {
		t.Errorf("want one SMS, got %d", f.sms.count())
	}
}

func TestConfirmDeliveredTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.reconciler.Confirm(ctx, confirmPayment("QFG7X9K2", "512345#A101", 3000))
	second := f.reconciler.Confirm(ctx, confirmPayment("QFG7X9K2", "512345#A101", 3000))

	if first.State != StateCreated {
		t.Fatalf("first delivery: want %s, got %s", StateCreated, first.State)
	}
	if second.State != StateDuplicate {
		t.Fatalf("second delivery: want %s, got %s", StateDuplicate, second.State)
	}

	payments, _ := f.store.PaymentsByTenant(ctx, f.tenant.ID)
	if len(payments) != 1 {
		t.Fatalf("want one payment row, got %d", len(payments))
	}

	f.waitAudit(t)
	f.reconciler.Drain()
	if f.sms.count() > 1 {
		t.Fatalf("at most one SMS for a retried confirmation, got %d", f.sms.count())
	}
}

func TestConfirmUnknownReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := models.IncomingPayment{
		TransactionID:    "TXUNKNOWN",
		Amount:           decimal.NewFromInt(1000),
		MSISDN:           "254700000000",
		AccountReference: "UNKNOWN#Z999",
	}
	out := f.reconciler.Confirm(ctx, in)
	if out.State != StateTenantNotFound {
		t.Fatalf("want %s, got %s", StateTenantNotFound, out.State)
	}

	payments, _ := f.store.PaymentsByTenant(ctx, f.tenant.ID)
	if len(payments) != 0 {
		t.Fatalf("no payment rows expected, got %d", len(payments))
	}
	f.reconciler.Drain()
	if f.sms.count() != 0 {
		t.Fatalf("no SMS expected, got %d", f.sms.count())
	}
}

func TestConfirmGlobalFallbackFlagged(t *testing.T) {
	f := newFixture(t)

	// Reference matches no owner; payer phone matches exactly one tenant.
	out := f.reconciler.Confirm(context.Background(), confirmPayment("TXFALLBACK", "NOSUCHCODE", 2000))
	if out.State != StateCreated {
		t.Fatalf("want %s, got %s (err %v)", StateCreated, out.State, out.Err)
	}
	if out.Strategy != resolve.StrategyGlobalPhone || !out.LowConfidence {
		t.Fatalf("want flagged global fallback, got %+v", out)
	}

	e := f.waitAudit(t)
	if !e.LowConfidence {
		t.Error("audit event must carry the low-confidence flag")
	}
	f.reconciler.Drain()
}

func TestDrainFlushesAuditEvents(t *testing.T) {
	f := newFixture(t)

	out := f.reconciler.Confirm(context.Background(), confirmPayment("TXDRAIN1", "512345#A101", 4000))
	if out.State != StateCreated {
		t.Fatalf("want %s, got %s", StateCreated, out.State)
	}

	// After Drain returns no post-commit work may still be in flight: the
	// audit event must already be delivered, without waiting.
	f.reconciler.Drain()
	select {
	case e := <-f.audit.events:
		if e.TransactionID != "TXDRAIN1" {
			t.Errorf("audit event for wrong transaction: %+v", e)
		}
	default:
		t.Fatal("audit event dropped: Drain returned before post-commit work finished")
	}
}

func TestConfirmInvalidPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.reconciler.Confirm(ctx, models.IncomingPayment{
		Amount:           decimal.NewFromInt(100),
		AccountReference: "512345#A101",
	})
	if out.State != StateInvalidPayload {
		t.Fatalf("missing transaction id: want %s, got %s", StateInvalidPayload, out.State)
	}

	out = f.reconciler.Confirm(ctx, models.IncomingPayment{
		TransactionID:    "TXZERO",
		AccountReference: "512345#A101",
	})
	if out.State != StateInvalidPayload {
		t.Fatalf("zero amount: want %s, got %s", StateInvalidPayload, out.State)
	}
}

func TestSimulatePayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := f.reconciler.Simulate(ctx, f.tenant.ID, decimal.NewFromInt(5000), "600000")
	if out.State != StateCreated {
		t.Fatalf("want %s, got %s (err %v)", StateCreated, out.State, out.Err)
	}
	if out.Tenant.ID != f.tenant.ID {
		t.Errorf("simulated payment credited tenant %d, want %d", out.Tenant.ID, f.tenant.ID)
	}
	if out.Payment.TransactionID == "" {
		t.Error("simulated payment must carry a generated transaction id")
	}

	// Each run generates a fresh transaction id, so a second simulation is
	// a new payment, not a duplicate.
	again := f.reconciler.Simulate(ctx, f.tenant.ID, decimal.NewFromInt(5000), "600000")
	if again.State != StateCreated {
		t.Fatalf("second simulation: want %s, got %s", StateCreated, again.State)
	}
	payments, _ := f.store.PaymentsByTenant(ctx, f.tenant.ID)
	if len(payments) != 2 {
		t.Fatalf("want two payment rows, got %d", len(payments))
	}
	f.reconciler.Drain()
}

func TestSimulateUnknownTenant(t *testing.T) {
	f := newFixture(t)

	out := f.reconciler.Simulate(context.Background(), 9999, decimal.NewFromInt(1000), "600000")
	if out.State != StateTenantNotFound {
		t.Fatalf("want %s, got %s", StateTenantNotFound, out.State)
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.reconciler.Validate(ctx, "512345#A101", "", 0)
	if err != nil || !ok {
		t.Fatalf("known reference must validate, got ok=%v err=%v", ok, err)
	}

	ok, err = f.reconciler.Validate(ctx, "UNKNOWN#Z999", "", 0)
	if err != nil || ok {
		t.Fatalf("unknown reference must not validate, got ok=%v err=%v", ok, err)
	}
}

func TestValidateBareOccupantCode(t *testing.T) {
	f := newFixture(t)

	// No delimiter: the reference doubles as an occupant code once the
	// shortcode field identifies the owner.
	ok, err := f.reconciler.Validate(context.Background(), "A101", "512345", 0)
	if err != nil || !ok {
		t.Fatalf("bare occupant code with shortcode must validate, got ok=%v err=%v", ok, err)
	}
}
