// Package engine consolidates the reconciliation pipeline: normalize the
// incoming confirmation, resolve the owner, resolve the tenant, write the
// payment exactly once, reproject the balance, and fan notifications out
// after commit.
package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/daraja"
	"github.com/offthaspin/renting/internal/events"
	"github.com/offthaspin/renting/internal/interfaces"
	"github.com/offthaspin/renting/internal/ledger"
	"github.com/offthaspin/renting/internal/metrics"
	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/notify"
	"github.com/offthaspin/renting/internal/resolve"
	"github.com/offthaspin/renting/internal/telemetry"
)

// State is the terminal state of one reconciliation attempt, mirroring the
// adapter's acknowledgement decision table.
type State string

const (
	StateCreated        State = "payment_created"
	StateDuplicate      State = "payment_duplicate"
	StateTenantNotFound State = "tenant_not_found"
	StateInvalidPayload State = "invalid_payload"
	StateStorageError   State = "storage_error"
)

// Outcome is what the webhook adapter translates into a provider ack.
type Outcome struct {
	State         State
	Tenant        *models.Tenant
	Payment       *models.Payment
	Balance       ledger.Balance
	Strategy      resolve.Strategy
	LowConfidence bool
	Err           error
}

type Reconciler struct {
	store      interfaces.Store
	resolver   *resolve.Resolver
	writer     *ledger.Writer
	dispatcher *notify.Dispatcher
	audit      events.Publisher
	verifier   daraja.Verifier

	// verifyTimeout bounds the advisory post-commit verification call.
	verifyTimeout time.Duration

	// wg tracks post-commit goroutines so Drain can flush audit events
	// on shutdown, not just the dispatcher's notifications.
	wg sync.WaitGroup
}

func NewReconciler(
	store interfaces.Store,
	resolver *resolve.Resolver,
	writer *ledger.Writer,
	dispatcher *notify.Dispatcher,
	audit events.Publisher,
	verifier daraja.Verifier,
) *Reconciler {
	if audit == nil {
		audit = events.NoopPublisher{}
	}
	if verifier == nil {
		verifier = daraja.NoopVerifier{}
	}
	return &Reconciler{
		store:         store,
		resolver:      resolver,
		writer:        writer,
		dispatcher:    dispatcher,
		audit:         audit,
		verifier:      verifier,
		verifyTimeout: 12 * time.Second,
	}
}

// Confirm processes one confirmation webhook. Resolution and persistence
// errors are folded into the Outcome; nothing escapes as a panic or an
// unhandled error across the adapter boundary.
func (r *Reconciler) Confirm(ctx context.Context, in models.IncomingPayment) Outcome {
	if err := in.Validate(); err != nil {
		telemetry.Logger.Warn("invalid confirmation payload",
			zap.String("transaction_id", in.TransactionID),
			zap.String("account_reference", in.AccountReference),
			zap.Error(err))
		metrics.Anomalies.Inc()
		return Outcome{State: StateInvalidPayload, Err: err}
	}

	match, owner, err := r.resolveForPayment(ctx, in)
	if err != nil {
		if errors.Is(err, resolve.ErrTenantNotFound) {
			telemetry.Logger.Warn("confirmation left unmatched, flagged for manual reconciliation",
				zap.String("transaction_id", in.TransactionID),
				zap.String("account_reference", in.AccountReference),
				zap.String("msisdn", in.MSISDN),
				zap.Bool("owner_resolved", owner.Resolved))
			metrics.Anomalies.Inc()
			return Outcome{State: StateTenantNotFound, Err: err}
		}
		telemetry.Logger.Error("storage failure during resolution",
			zap.String("transaction_id", in.TransactionID), zap.Error(err))
		return Outcome{State: StateStorageError, Err: err}
	}

	result, err := r.writer.Record(ctx, match.Tenant, in)
	if err != nil {
		if errors.Is(err, models.ErrMissingTransactionID) || errors.Is(err, models.ErrInvalidAmount) {
			metrics.Anomalies.Inc()
			return Outcome{State: StateInvalidPayload, Err: err}
		}
		telemetry.Logger.Error("payment write failed, provider will retry",
			zap.String("transaction_id", in.TransactionID),
			zap.Int64("tenant_id", match.Tenant.ID),
			zap.Error(err))
		return Outcome{State: StateStorageError, Err: err}
	}

	if result.Duplicate {
		metrics.DuplicatesIgnored.Inc()
		return Outcome{
			State:    StateDuplicate,
			Tenant:   match.Tenant,
			Strategy: match.Strategy,
		}
	}

	metrics.PaymentsRecorded.Inc()
	metrics.ResolutionStrategy.WithLabelValues(string(match.Strategy)).Inc()

	// Read-after-write: re-read the history so the projection sees the
	// payment just written.
	balance := r.projectAfterWrite(ctx, match.Tenant)

	telemetry.Logger.Info("payment recorded",
		zap.String("transaction_id", in.TransactionID),
		zap.String("payment_id", result.Payment.ID),
		zap.Int64("tenant_id", match.Tenant.ID),
		zap.Int64("owner_id", match.Tenant.OwnerID),
		zap.String("amount", in.Amount.StringFixed(2)),
		zap.String("strategy", string(match.Strategy)),
		zap.Bool("low_confidence", match.LowConfidence))

	r.dispatcher.Dispatch(match.Tenant, result.Payment, balance)
	r.wg.Add(1)
	go r.postCommit(in, match, result.Payment)

	return Outcome{
		State:         StateCreated,
		Tenant:        match.Tenant,
		Payment:       result.Payment,
		Balance:       balance,
		Strategy:      match.Strategy,
		LowConfidence: match.LowConfidence,
	}
}

// Validate answers the provider's pre-payment check: can this reference be
// attributed to a tenant at all. Unlike Confirm, rejecting here is allowed.
func (r *Reconciler) Validate(ctx context.Context, accountReference, shortcode string, ownerID int64) (bool, error) {
	in := models.IncomingPayment{
		AccountReference:  accountReference,
		BusinessShortCode: shortcode,
		OwnerID:           ownerID,
	}
	match, _, err := r.resolveForPayment(ctx, in)
	if err != nil {
		if errors.Is(err, resolve.ErrTenantNotFound) {
			return false, nil
		}
		return false, err
	}
	telemetry.Logger.Info("validation passed",
		zap.String("account_reference", accountReference),
		zap.Int64("tenant_id", match.Tenant.ID))
	return true, nil
}

// Simulate fabricates a confirmation for a known tenant so integrations can
// be exercised without real money. The payment flows through the normal
// Confirm path, including idempotency and notifications; only the
// transaction id is generated here.
func (r *Reconciler) Simulate(ctx context.Context, tenantID int64, amount decimal.Decimal, fallbackShortCode string) Outcome {
	tenant, err := r.store.TenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return Outcome{State: StateTenantNotFound, Err: err}
		}
		return Outcome{State: StateStorageError, Err: err}
	}

	code := fallbackShortCode
	if owner, err := r.store.OwnerByID(ctx, tenant.OwnerID); err == nil {
		if codes := owner.BusinessCodes(); len(codes) > 0 {
			code = codes[0]
		}
	}

	in := models.IncomingPayment{
		TransactionID:     "SIM" + strings.ToUpper(uuid.New().String()[:10]),
		Amount:            amount,
		MSISDN:            tenant.Phone,
		AccountReference:  code + "#" + tenant.HouseNo,
		BusinessShortCode: code,
		OwnerID:           tenant.OwnerID,
	}
	telemetry.Logger.Info("simulating payment",
		zap.Int64("tenant_id", tenantID),
		zap.String("transaction_id", in.TransactionID),
		zap.String("amount", amount.StringFixed(2)))
	return r.Confirm(ctx, in)
}

// resolveForPayment runs owner then tenant resolution off the reference
// fields. Without a '#' separator the whole reference doubles as the
// occupant code, matching how payers actually type references.
func (r *Reconciler) resolveForPayment(ctx context.Context, in models.IncomingPayment) (resolve.TenantMatch, resolve.OwnerResolution, error) {
	code, occupant, hasSep := resolve.SplitReference(in.AccountReference)
	if !hasSep {
		occupant = code
	}

	owner, err := r.resolver.ResolveOwner(ctx, code, in.OwnerID)
	if err != nil {
		return resolve.TenantMatch{}, owner, err
	}
	if !owner.Resolved && in.BusinessShortCode != "" && in.BusinessShortCode != code {
		owner, err = r.resolver.ResolveOwner(ctx, in.BusinessShortCode, 0)
		if err != nil {
			return resolve.TenantMatch{}, owner, err
		}
	}

	match, err := r.resolver.ResolveTenant(ctx, owner, occupant, in.MSISDN)
	return match, owner, err
}

func (r *Reconciler) projectAfterWrite(ctx context.Context, tenant *models.Tenant) ledger.Balance {
	payments, err := r.store.PaymentsByTenant(ctx, tenant.ID)
	if err != nil {
		telemetry.Logger.Warn("balance projection read failed",
			zap.Int64("tenant_id", tenant.ID), zap.Error(err))
		return ledger.Balance{}
	}
	return ledger.Project(tenant, payments, time.Now().UTC())
}

// postCommit runs the advisory work that must never block the ack path:
// audit event publication and provider-side verification.
func (r *Reconciler) postCommit(in models.IncomingPayment, match resolve.TenantMatch, payment *models.Payment) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Logger.Error("post-commit work panicked", zap.Any("panic", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.verifyTimeout)
	defer cancel()

	r.audit.Publish(ctx, in.TransactionID, events.PaymentRecorded{
		TransactionID:    in.TransactionID,
		PaymentID:        payment.ID,
		TenantID:         match.Tenant.ID,
		OwnerID:          match.Tenant.OwnerID,
		Amount:           in.Amount.StringFixed(2),
		AccountReference: in.AccountReference,
		Strategy:         string(match.Strategy),
		LowConfidence:    match.LowConfidence,
		RecordedAt:       time.Now().UTC(),
	})

	if verified := r.verifier.VerifyTransaction(ctx, in.TransactionID, in.Amount, in.MSISDN, in.BusinessShortCode); !verified {
		telemetry.Logger.Info("provider verification inconclusive",
			zap.String("transaction_id", in.TransactionID))
	}
}

// Drain waits for in-flight notifications and post-commit work; used on
// shutdown.
func (r *Reconciler) Drain() {
	r.dispatcher.Drain()
	r.wg.Wait()
}
