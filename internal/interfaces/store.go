package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/offthaspin/renting/internal/models"
)

// ErrNotFound is returned by lookup methods when no row matches.
var ErrNotFound = errors.New("not found")

// Store is the single storage contract for the reconciliation engine.
// InsertPayment is the only operation with a concurrency requirement: the
// uniqueness check and insert on transaction id must be atomic with respect
// to concurrent callers, enforced by the storage layer itself.
type Store interface {
	OwnerByID(ctx context.Context, id int64) (*models.Owner, error)
	OwnerByBusinessCode(ctx context.Context, code string) (*models.Owner, error)

	TenantByID(ctx context.Context, id int64) (*models.Tenant, error)
	// TenantByHouseNo matches the occupant code case-insensitively within
	// one owner's scope.
	TenantByHouseNo(ctx context.Context, ownerID int64, houseNo string) (*models.Tenant, error)
	// TenantByPhoneSuffix matches the trailing digits of the phone number
	// within one owner's scope.
	TenantByPhoneSuffix(ctx context.Context, ownerID int64, suffix string) (*models.Tenant, error)
	// TenantByPhoneSuffixAny searches the entire tenant population. Callers
	// must treat a hit as low-confidence.
	TenantByPhoneSuffixAny(ctx context.Context, suffix string) (*models.Tenant, error)

	// InsertPayment reports created=false with a nil error when a payment
	// with the same transaction id already exists.
	InsertPayment(ctx context.Context, p *models.Payment) (created bool, err error)
	PaymentsByTenant(ctx context.Context, tenantID int64) ([]models.Payment, error)

	// AccrueMonthlyRent adds monthly_rent for every full month a tenant has
	// fallen behind and advances last_rent_update. Returns the number of
	// tenants updated.
	AccrueMonthlyRent(ctx context.Context, asOf time.Time) (int, error)
}
