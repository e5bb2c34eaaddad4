package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offthaspin/renting/internal/interfaces"
	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/phone"
)

// MemoryStore is an in-process Store used by tests. A single mutex makes
// the transaction-id check-and-insert atomic, mirroring the
// unique-constraint guarantee of the postgres store.
type MemoryStore struct {
	mu       sync.RWMutex
	owners   map[int64]*models.Owner
	tenants  map[int64]*models.Tenant
	payments map[string]*models.Payment // keyed by transaction id
	nextID   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners:   make(map[int64]*models.Owner),
		tenants:  make(map[int64]*models.Tenant),
		payments: make(map[string]*models.Payment),
		nextID:   1,
	}
}

// AddOwner seeds an owner and returns it with an assigned id.
func (s *MemoryStore) AddOwner(o models.Owner) *models.Owner {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.nextID
	s.nextID++
	s.owners[o.ID] = &o
	return &o
}

// AddTenant seeds a tenant and returns it with an assigned id.
func (s *MemoryStore) AddTenant(t models.Tenant) *models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID
	s.nextID++
	s.tenants[t.ID] = &t
	return &t
}

func (s *MemoryStore) OwnerByID(ctx context.Context, id int64) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.owners[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemoryStore) OwnerByBusinessCode(ctx context.Context, code string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.owners {
		for _, c := range o.BusinessCodes() {
			if c == code {
				cp := *o
				return &cp, nil
			}
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemoryStore) TenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tenants[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemoryStore) TenantByHouseNo(ctx context.Context, ownerID int64, houseNo string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.sortedTenants() {
		if t.OwnerID == ownerID && strings.EqualFold(t.HouseNo, houseNo) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemoryStore) TenantByPhoneSuffix(ctx context.Context, ownerID int64, suffix string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.sortedTenants() {
		if t.OwnerID == ownerID && phone.Suffix(t.Phone) == suffix {
			cp := *t
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemoryStore) TenantByPhoneSuffixAny(ctx context.Context, suffix string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.sortedTenants() {
		if phone.Suffix(t.Phone) == suffix {
			cp := *t
			return &cp, nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *MemoryStore) InsertPayment(ctx context.Context, p *models.Payment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.payments[p.TransactionID]; exists {
		return false, nil
	}
	cp := *p
	cp.CreatedAt = time.Now().UTC()
	s.payments[p.TransactionID] = &cp
	return true, nil
}

func (s *MemoryStore) PaymentsByTenant(ctx context.Context, tenantID int64) ([]models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.TenantID == tenantID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.Before(out[j].PaidAt) })
	return out, nil
}

func (s *MemoryStore) AccrueMonthlyRent(ctx context.Context, asOf time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for _, t := range s.tenants {
		behind := (asOf.Year()-t.LastRentUpdate.Year())*12 + int(asOf.Month()) - int(t.LastRentUpdate.Month())
		if behind > 0 {
			t.AmountDue = t.AmountDue.Add(t.MonthlyRent.Mul(decimal.NewFromInt(int64(behind))))
			t.LastRentUpdate = asOf
			updated++
		}
	}
	return updated, nil
}

// sortedTenants returns tenants in id order so lookups are deterministic.
func (s *MemoryStore) sortedTenants() []*models.Tenant {
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
