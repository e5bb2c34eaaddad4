package ledger

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offthaspin/renting/internal/models"
	"github.com/offthaspin/renting/internal/repository"
)

func newTenant(t *testing.T, store *repository.MemoryStore) *models.Tenant {
	t.Helper()
	owner := store.AddOwner(models.Owner{Email: "owner@landlords.co.ke", PaybillNumber: "512345"})
	return store.AddTenant(models.Tenant{
		OwnerID:     owner.ID,
		Name:        "Alice Wanjiku",
		Phone:       "0712345678",
		HouseNo:     "A101",
		MonthlyRent: decimal.NewFromInt(10000),
		MoveInDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	})
}

func incoming(txID string, amount int64) models.IncomingPayment {
	return models.IncomingPayment{
		TransactionID:    txID,
		Amount:           decimal.NewFromInt(amount),
		MSISDN:           "254712345678",
		AccountReference: "512345#A101",
	}
}

func TestRecordOnceThenDuplicate(t *testing.T) {
	store := repository.NewMemoryStore()
	tenant := newTenant(t, store)
	w := NewWriter(store)
	ctx := context.Background()

	first, err := w.Record(ctx, tenant, incoming("QFG7X9K2", 3000))
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if first.Duplicate || first.Payment == nil {
		t.Fatalf("first record should create, got %+v", first)
	}

	second, err := w.Record(ctx, tenant, incoming("QFG7X9K2", 3000))
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if !second.Duplicate {
		t.Fatal("second record with same transaction id must report duplicate")
	}

	payments, _ := store.PaymentsByTenant(ctx, tenant.ID)
	if len(payments) != 1 {
		t.Fatalf("want exactly one persisted payment, got %d", len(payments))
	}
}

func TestRecordConcurrentSameTransaction(t *testing.T) {
	store := repository.NewMemoryStore()
	tenant := newTenant(t, store)
	w := NewWriter(store)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	created := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := w.Record(ctx, tenant, incoming("RACE001", 5000))
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			if !res.Duplicate {
				created <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(created)

	n := 0
	for range created {
		n++
	}
	if n != 1 {
		t.Fatalf("exactly one concurrent writer must win, got %d", n)
	}
	payments, _ := store.PaymentsByTenant(ctx, tenant.ID)
	if len(payments) != 1 {
		t.Fatalf("want one payment row, got %d", len(payments))
	}
}

func TestRecordRejectsInvalidPayment(t *testing.T) {
	store := repository.NewMemoryStore()
	tenant := newTenant(t, store)
	w := NewWriter(store)
	ctx := context.Background()

	if _, err := w.Record(ctx, tenant, incoming("", 3000)); err == nil {
		t.Error("missing transaction id must be rejected")
	}
	if _, err := w.Record(ctx, tenant, incoming("TX1", 0)); err == nil {
		t.Error("non-positive amount must be rejected")
	}
	if _, err := w.Record(ctx, tenant, incoming("TX2", -50)); err == nil {
		t.Error("negative amount must be rejected")
	}
}

func TestMonthsElapsed(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	cases := []struct {
		name   string
		moveIn time.Time
		asOf   time.Time
		want   int
	}{
		{"same day", day(2026, 1, 15), day(2026, 1, 15), 1},
		{"same month later", day(2026, 1, 15), day(2026, 1, 20), 1},
		{"next month before anniversary", day(2026, 1, 15), day(2026, 2, 10), 1},
		{"next month after anniversary", day(2026, 1, 15), day(2026, 2, 20), 2},
		{"two months partial", day(2026, 1, 15), day(2026, 3, 10), 2},
		{"two months full", day(2026, 1, 15), day(2026, 3, 20), 3},
		{"year boundary", day(2025, 11, 1), day(2026, 2, 1), 4},
		{"before move in", day(2026, 5, 1), day(2026, 4, 30), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MonthsElapsed(tc.moveIn, tc.asOf); got != tc.want {
				t.Errorf("MonthsElapsed(%s, %s) = %d, want %d",
					tc.moveIn.Format("2006-01-02"), tc.asOf.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func TestProjectSumMinusDue(t *testing.T) {
	tenant := &models.Tenant{
		ID:          1,
		MonthlyRent: decimal.NewFromInt(10000),
		MoveInDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) // 3 months due

	payments := []models.Payment{
		{Amount: decimal.NewFromInt(10000)},
		{Amount: decimal.NewFromInt(12000)},
		{Amount: decimal.NewFromInt(3000)},
	}

	b := Project(tenant, payments, asOf)
	if !b.TotalPaid.Equal(decimal.NewFromInt(25000)) {
		t.Errorf("TotalPaid = %s, want 25000", b.TotalPaid)
	}
	if !b.TotalDue.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("TotalDue = %s, want 30000", b.TotalDue)
	}
	if !b.Balance.Equal(decimal.NewFromInt(-5000)) {
		t.Errorf("Balance = %s, want -5000", b.Balance)
	}
}

func TestProjectOrderInvariant(t *testing.T) {
	tenant := &models.Tenant{
		ID:          1,
		MonthlyRent: decimal.NewFromInt(7500),
		MoveInDate:  time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
	}
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	payments := []models.Payment{
		{Amount: decimal.NewFromInt(7500)},
		{Amount: decimal.NewFromInt(2500)},
		{Amount: decimal.NewFromInt(5000)},
		{Amount: decimal.NewFromInt(7500)},
		{Amount: decimal.NewFromInt(1000)},
	}

	want := Project(tenant, payments, asOf)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]models.Payment, len(payments))
		copy(shuffled, payments)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Project(tenant, shuffled, asOf)
		if !got.Balance.Equal(want.Balance) || !got.TotalPaid.Equal(want.TotalPaid) {
			t.Fatalf("projection changed under reordering: got %+v, want %+v", got, want)
		}
	}
}

func TestProjectEmptyHistory(t *testing.T) {
	tenant := &models.Tenant{
		MonthlyRent: decimal.NewFromInt(10000),
		MoveInDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b := Project(tenant, nil, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	if !b.TotalPaid.Equal(decimal.Zero) {
		t.Errorf("TotalPaid = %s, want 0", b.TotalPaid)
	}
	if !b.Balance.Equal(decimal.NewFromInt(-10000)) {
		t.Errorf("Balance = %s, want -10000", b.Balance)
	}
}
