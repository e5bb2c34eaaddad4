// Package resolve maps the opaque fields of a payment notification — a
// business short code and a free-text reference — onto an owner and a
// tenant. Resolution prefers precise, scope-bounded matches before widening:
// occupant code inside the owner's scope, then phone suffix inside the
// owner's scope, then (only when no owner resolved) phone suffix across the
// entire tenant population.
package resolve

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/offthaspin/renting/internal/interfaces"
	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/phone"
	"github.com/offthaspin/renting/internal/telemetry"
)

var ErrTenantNotFound = errors.New("tenant not found")

// Strategy names the layer that produced a tenant match.
type Strategy string

const (
	StrategyHouseNo     Strategy = "house_no"
	StrategyPhoneSuffix Strategy = "phone_suffix"
	StrategyGlobalPhone Strategy = "global_phone"
)

// OwnerResolution is the tagged result of an owner lookup. Unresolved is a
// valid terminal state: the engine never guesses an owner, since guessing
// risks crediting the wrong landlord.
type OwnerResolution struct {
	Owner    *models.Owner
	Resolved bool
}

// TenantMatch carries the matched tenant plus how it was found.
// LowConfidence marks matches made outside any owner scope; those are logged
// distinctly for audit since they are the weakest guarantee in the system.
type TenantMatch struct {
	Tenant        *models.Tenant
	Strategy      Strategy
	LowConfidence bool
}

type Resolver struct {
	store interfaces.Store
	phone phone.Normalizer
}

func NewResolver(store interfaces.Store, countryCode string) *Resolver {
	return &Resolver{store: store, phone: phone.Normalizer{CountryCode: countryCode}}
}

// SplitReference splits "600100#A101" into the business code and the
// occupant code. Without a delimiter the whole reference is returned as the
// code and hasSep is false; callers may then try it as an occupant code too.
func SplitReference(ref string) (code, occupant string, hasSep bool) {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "#"); i >= 0 {
		return strings.TrimSpace(ref[:i]), strings.TrimSpace(ref[i+1:]), true
	}
	return ref, "", false
}

// ResolveOwner resolves in order: trusted explicit id, then business-code
// lookup. Codes are unique system-wide, so a code hit is authoritative.
func (r *Resolver) ResolveOwner(ctx context.Context, code string, explicitID int64) (OwnerResolution, error) {
	if explicitID > 0 {
		owner, err := r.store.OwnerByID(ctx, explicitID)
		if err == nil {
			return OwnerResolution{Owner: owner, Resolved: true}, nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return OwnerResolution{}, err
		}
		telemetry.Logger.Warn("explicit owner id did not resolve",
			zap.Int64("owner_id", explicitID))
	}

	if code != "" {
		owner, err := r.store.OwnerByBusinessCode(ctx, code)
		if err == nil {
			return OwnerResolution{Owner: owner, Resolved: true}, nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return OwnerResolution{}, err
		}
	}

	return OwnerResolution{}, nil
}

// ResolveTenant applies the layered strategy, first hit wins. Returns
// ErrTenantNotFound when every layer misses.
func (r *Resolver) ResolveTenant(ctx context.Context, owner OwnerResolution, occupantCode, msisdn string) (TenantMatch, error) {
	// Suffix matching is the legacy-compatibility mode and must not depend
	// on the number reducing to canonical form: M-Pesa serves payers whose
	// numbers fall outside the 7-prefix ranges.
	var suffix string
	if canonical, err := r.phone.Normalize(msisdn); err == nil {
		suffix = phone.Suffix(canonical)
	} else if s := phone.Suffix(msisdn); len(s) == phone.SuffixLen {
		suffix = s
	}

	if owner.Resolved {
		if occupantCode != "" {
			t, err := r.store.TenantByHouseNo(ctx, owner.Owner.ID, occupantCode)
			if err == nil {
				return TenantMatch{Tenant: t, Strategy: StrategyHouseNo}, nil
			}
			if !errors.Is(err, interfaces.ErrNotFound) {
				return TenantMatch{}, err
			}
		}

		if suffix != "" {
			t, err := r.store.TenantByPhoneSuffix(ctx, owner.Owner.ID, suffix)
			if err == nil {
				return TenantMatch{Tenant: t, Strategy: StrategyPhoneSuffix}, nil
			}
			if !errors.Is(err, interfaces.ErrNotFound) {
				return TenantMatch{}, err
			}
		}

		return TenantMatch{}, ErrTenantNotFound
	}

	// Owner unresolved: last-resort global suffix match. Cross-tenant
	// misattribution risk lives here, hence the distinct log and the flag.
	if suffix != "" {
		t, err := r.store.TenantByPhoneSuffixAny(ctx, suffix)
		if err == nil {
			telemetry.Logger.Warn("tenant matched by global phone fallback",
				zap.Int64("tenant_id", t.ID),
				zap.Int64("owner_id", t.OwnerID),
				zap.String("phone_suffix", suffix))
			return TenantMatch{Tenant: t, Strategy: StrategyGlobalPhone, LowConfidence: true}, nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return TenantMatch{}, err
		}
	}

	return TenantMatch{}, ErrTenantNotFound
}
