package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/offthaspin/renting/internal/interfaces"
	"github.com/offthaspin/renting/internal/models"
)

// PostgresStore implements interfaces.Store on database/sql. Payment
// idempotency rides on the unique index over transaction_id and an
// ON CONFLICT DO NOTHING insert, so concurrent retries from multiple
// process instances collapse to one row without application locks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS owners (
			id BIGSERIAL PRIMARY KEY,
			email VARCHAR(256) UNIQUE NOT NULL,
			payment_method VARCHAR(50),
			paybill_number VARCHAR(30),
			till_number VARCHAR(30),
			send_money_number VARCHAR(30),
			phone_number VARCHAR(30),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_owners_paybill
			ON owners(paybill_number) WHERE paybill_number <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_owners_till
			ON owners(till_number) WHERE till_number <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_owners_send_money
			ON owners(send_money_number) WHERE send_money_number <> ''`,

		`CREATE TABLE IF NOT EXISTS tenants (
			id BIGSERIAL PRIMARY KEY,
			owner_id BIGINT NOT NULL REFERENCES owners(id),
			name VARCHAR(180) NOT NULL,
			phone VARCHAR(80) NOT NULL,
			national_id VARCHAR(80) DEFAULT '',
			house_no VARCHAR(80) NOT NULL,
			monthly_rent DECIMAL(15,2) NOT NULL DEFAULT 0,
			move_in_date DATE NOT NULL DEFAULT CURRENT_DATE,
			amount_due DECIMAL(15,2) NOT NULL DEFAULT 0,
			last_rent_update DATE NOT NULL DEFAULT CURRENT_DATE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tenants_owner_house
			ON tenants(owner_id, lower(house_no))`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_phone_suffix
			ON tenants(right(regexp_replace(phone, '\D', '', 'g'), 6))`,

		`CREATE TABLE IF NOT EXISTS payments (
			id VARCHAR(36) PRIMARY KEY,
			tenant_id BIGINT NOT NULL REFERENCES tenants(id),
			transaction_id VARCHAR(64) UNIQUE NOT NULL,
			amount DECIMAL(15,2) NOT NULL,
			paid_at TIMESTAMP NOT NULL,
			note VARCHAR(255) DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_tenant_id ON payments(tenant_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("init db: %w", err)
		}
	}
	return nil
}

const ownerColumns = `id, email, COALESCE(payment_method, ''), COALESCE(paybill_number, ''),
	COALESCE(till_number, ''), COALESCE(send_money_number, ''), COALESCE(phone_number, ''), created_at`

func (s *PostgresStore) OwnerByID(ctx context.Context, id int64) (*models.Owner, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners WHERE id = $1`, id)
	return scanOwner(row)
}

func (s *PostgresStore) OwnerByBusinessCode(ctx context.Context, code string) (*models.Owner, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM owners
		 WHERE paybill_number = $1 OR till_number = $1 OR send_money_number = $1
		 LIMIT 1`, code)
	return scanOwner(row)
}

func scanOwner(row *sql.Row) (*models.Owner, error) {
	var o models.Owner
	err := row.Scan(&o.ID, &o.Email, &o.PaymentMethod, &o.PaybillNumber,
		&o.TillNumber, &o.SendMoneyNumber, &o.PhoneNumber, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

const tenantColumns = `id, owner_id, name, phone, COALESCE(national_id, ''), house_no,
	monthly_rent, move_in_date, amount_due, last_rent_update, created_at`

func (s *PostgresStore) TenantByID(ctx context.Context, id int64) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *PostgresStore) TenantByHouseNo(ctx context.Context, ownerID int64, houseNo string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE owner_id = $1 AND lower(house_no) = lower($2)
		 LIMIT 1`, ownerID, houseNo)
	return scanTenant(row)
}

func (s *PostgresStore) TenantByPhoneSuffix(ctx context.Context, ownerID int64, suffix string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE owner_id = $1 AND right(regexp_replace(phone, '\D', '', 'g'), 6) = $2
		 LIMIT 1`, ownerID, suffix)
	return scanTenant(row)
}

func (s *PostgresStore) TenantByPhoneSuffixAny(ctx context.Context, suffix string) (*models.Tenant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants
		 WHERE right(regexp_replace(phone, '\D', '', 'g'), 6) = $1
		 ORDER BY id
		 LIMIT 1`, suffix)
	return scanTenant(row)
}

func scanTenant(row *sql.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Phone, &t.NationalID, &t.HouseNo,
		&t.MonthlyRent, &t.MoveInDate, &t.AmountDue, &t.LastRentUpdate, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) InsertPayment(ctx context.Context, p *models.Payment) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, tenant_id, transaction_id, amount, paid_at, note)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id) DO NOTHING
	`, p.ID, p.TenantID, p.TransactionID, p.Amount, p.PaidAt, p.Note)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (s *PostgresStore) PaymentsByTenant(ctx context.Context, tenantID int64) ([]models.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, transaction_id, amount, paid_at, COALESCE(note, ''), created_at
		FROM payments
		WHERE tenant_id = $1
		ORDER BY paid_at ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ID, &p.TenantID, &p.TransactionID, &p.Amount,
			&p.PaidAt, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *PostgresStore) AccrueMonthlyRent(ctx context.Context, asOf time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET amount_due = amount_due + monthly_rent * (
			(EXTRACT(YEAR FROM $1::date) - EXTRACT(YEAR FROM last_rent_update)) * 12 +
			(EXTRACT(MONTH FROM $1::date) - EXTRACT(MONTH FROM last_rent_update))
		),
		last_rent_update = $1::date
		WHERE (EXTRACT(YEAR FROM $1::date) - EXTRACT(YEAR FROM last_rent_update)) * 12 +
			(EXTRACT(MONTH FROM $1::date) - EXTRACT(MONTH FROM last_rent_update)) > 0
	`, asOf)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}
