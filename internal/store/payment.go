package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type paymentStore struct {
	db *sqlx.DB
}

// Upsert keys payments on (dolibarr_ref, payment_type, invoice) — Dolibarr
// exposes payments per invoice without a stable standalone id.
func (s *paymentStore) Upsert(ctx context.Context, p *Payment) (bool, error) {
	ts := now()
	p.FirstSyncedAt = ts
	p.LastSyncedAt = ts

	query := `INSERT INTO fin_payments (
		dolibarr_ref, payment_type, invoice_dolibarr_id, amount, payment_date,
		payment_method, bank_account_id, first_synced_at, last_synced_at
	) VALUES (
		:dolibarr_ref, :payment_type, :invoice_dolibarr_id, :amount, :payment_date,
		:payment_method, :bank_account_id, :first_synced_at, :last_synced_at
	)
	ON CONFLICT (dolibarr_ref, payment_type, invoice_dolibarr_id) DO UPDATE SET
		amount = EXCLUDED.amount,
		payment_date = EXCLUDED.payment_date,
		payment_method = EXCLUDED.payment_method,
		bank_account_id = EXCLUDED.bank_account_id,
		last_synced_at = EXCLUDED.last_synced_at
	RETURNING (xmax = 0) AS inserted`

	rows, err := sqlx.NamedQueryContext(ctx, s.db, query, p)
	if err != nil {
		return false, fmt.Errorf("upsert payment %s: %w", p.DolibarrRef, err)
	}
	defer rows.Close()

	inserted := false
	if rows.Next() {
		if err := rows.Scan(&inserted); err != nil {
			return false, err
		}
	}
	return inserted, rows.Err()
}

func (s *paymentStore) SettledByType(ctx context.Context, paymentType string) ([]SettledPayment, error) {
	table := "fin_customer_invoices"
	if paymentType == "supplier" {
		table = "fin_supplier_invoices"
	}

	query := fmt.Sprintf(`SELECT
		fp.*, inv.ref AS invoice_ref, inv.socid
	FROM fin_payments fp
	JOIN %s inv ON inv.dolibarr_id = fp.invoice_dolibarr_id
	WHERE fp.payment_type = $1
	ORDER BY fp.payment_date, fp.id`, table)

	payments := []SettledPayment{}
	if err := s.db.SelectContext(ctx, &payments, query, paymentType); err != nil {
		return nil, err
	}
	return payments, nil
}
