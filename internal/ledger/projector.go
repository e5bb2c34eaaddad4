package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/offthaspin/renting/internal/models"
)

// Balance is a derived snapshot: total paid from the payment history, total
// due from the elapsed-months formula. Positive Balance means the tenant has
// overpaid (credit); negative means they owe.
type Balance struct {
	TotalPaid decimal.Decimal `json:"total_paid"`
	TotalDue  decimal.Decimal `json:"total_due"`
	Balance   decimal.Decimal `json:"balance"`
}

// MonthsElapsed counts calendar months between move-in and asOf, with the
// partial current month due starting day 1. Zero before move-in.
func MonthsElapsed(moveIn, asOf time.Time) int {
	moveIn = truncateToDay(moveIn)
	asOf = truncateToDay(asOf)
	if asOf.Before(moveIn) {
		return 0
	}
	months := (asOf.Year()-moveIn.Year())*12 + int(asOf.Month()) - int(moveIn.Month())
	if asOf.Day() < moveIn.Day() {
		months--
	}
	return months + 1
}

// Project recomputes the paid/due/balance view from the full payment
// history. Pure: no side effects, no caching.
func Project(t *models.Tenant, payments []models.Payment, asOf time.Time) Balance {
	totalPaid := decimal.Zero
	for _, p := range payments {
		totalPaid = totalPaid.Add(p.Amount)
	}

	months := MonthsElapsed(t.MoveInDate, asOf)
	totalDue := t.MonthlyRent.Mul(decimal.NewFromInt(int64(months)))

	return Balance{
		TotalPaid: totalPaid,
		TotalDue:  totalDue,
		Balance:   totalPaid.Sub(totalDue),
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
