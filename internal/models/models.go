package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Owner is a landlord account. Each of its business codes (paybill, till,
// send-money number) is unique across the whole system; the resolver depends
// on that to multiplex many owners behind one webhook endpoint.
type Owner struct {
	ID              int64     `json:"id"`
	Email           string    `json:"email"`
	PaymentMethod   string    `json:"payment_method"` // "Paybill", "Till", "SendMoney"
	PaybillNumber   string    `json:"paybill_number,omitempty"`
	TillNumber      string    `json:"till_number,omitempty"`
	SendMoneyNumber string    `json:"send_money_number,omitempty"`
	PhoneNumber     string    `json:"phone_number,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// BusinessCodes returns the owner's registered codes, skipping empty ones.
func (o *Owner) BusinessCodes() []string {
	var codes []string
	for _, c := range []string{o.PaybillNumber, o.TillNumber, o.SendMoneyNumber} {
		if c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// Tenant is an occupant record under exactly one owner. HouseNo is unique
// within the owner's scope only. AmountDue and LastRentUpdate are maintained
// by the monthly accrual worker; balance projections never read them.
type Tenant struct {
	ID             int64           `json:"id"`
	OwnerID        int64           `json:"owner_id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	NationalID     string          `json:"national_id,omitempty"`
	HouseNo        string          `json:"house_no"`
	MonthlyRent    decimal.Decimal `json:"monthly_rent"`
	MoveInDate     time.Time       `json:"move_in_date"`
	AmountDue      decimal.Decimal `json:"amount_due"`
	LastRentUpdate time.Time       `json:"last_rent_update"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payment is immutable once written. TransactionID is the provider
// transaction id and is globally unique; it is the idempotency key for the
// whole engine.
type Payment struct {
	ID            string          `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

var (
	ErrMissingTransactionID = errors.New("missing transaction id")
	ErrInvalidAmount        = errors.New("amount must be positive")
)

// IncomingPayment is the normalized form of a provider confirmation,
// constructed per webhook call.
type IncomingPayment struct {
	TransactionID     string
	Amount            decimal.Decimal
	MSISDN            string
	AccountReference  string
	BusinessShortCode string

	// OwnerID is set when the call arrived on an owner-scoped URL and the
	// owner is already known; the resolver trusts it directly.
	OwnerID int64
}

func (p IncomingPayment) Validate() error {
	if p.TransactionID == "" {
		return ErrMissingTransactionID
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
