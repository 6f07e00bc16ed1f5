package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// invoiceStore serves both invoice kinds; the two tables share one column
// set and differ only in name.
type invoiceStore struct {
	db         *sqlx.DB
	kind       InvoiceKind
	table      string
	linesTable string
}

func (s *invoiceStore) Kind() InvoiceKind { return s.kind }

func (s *invoiceStore) GetSyncHash(ctx context.Context, dolibarrID int64) (string, bool, error) {
	var hash string
	query := fmt.Sprintf(`SELECT sync_hash FROM %s WHERE dolibarr_id = $1`, s.table)
	err := s.db.GetContext(ctx, &hash, query, dolibarrID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

func (s *invoiceStore) InsertWithLines(ctx context.Context, inv *Invoice, lines []InvoiceLine) error {
	ts := now()
	inv.FirstSyncedAt = ts
	inv.LastSyncedAt = ts
	inv.IsActive = true

	query := fmt.Sprintf(`INSERT INTO %s (
		dolibarr_id, ref, ref_counterparty, socid, type, status, is_paid,
		total_ht, total_tva, total_ttc, date_invoice, date_due, date_creation,
		fk_project, raw_payload, sync_hash, first_synced_at, last_synced_at, is_active
	) VALUES (
		:dolibarr_id, :ref, :ref_counterparty, :socid, :type, :status, :is_paid,
		:total_ht, :total_tva, :total_ttc, :date_invoice, :date_due, :date_creation,
		:fk_project, :raw_payload, :sync_hash, :first_synced_at, :last_synced_at, :is_active
	)`, s.table)

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, inv); err != nil {
			return fmt.Errorf("insert %s invoice %d: %w", s.kind, inv.DolibarrID, err)
		}
		return s.replaceLines(ctx, tx, inv.DolibarrID, lines)
	})
}

func (s *invoiceStore) UpdateWithLines(ctx context.Context, inv *Invoice, lines []InvoiceLine) error {
	inv.LastSyncedAt = now()
	inv.IsActive = true

	// first_synced_at is deliberately left alone on update.
	query := fmt.Sprintf(`UPDATE %s SET
		ref = :ref, ref_counterparty = :ref_counterparty, socid = :socid,
		type = :type, status = :status, is_paid = :is_paid,
		total_ht = :total_ht, total_tva = :total_tva, total_ttc = :total_ttc,
		date_invoice = :date_invoice, date_due = :date_due, date_creation = :date_creation,
		fk_project = :fk_project, raw_payload = :raw_payload, sync_hash = :sync_hash,
		last_synced_at = :last_synced_at, is_active = :is_active
	WHERE dolibarr_id = :dolibarr_id`, s.table)

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, inv); err != nil {
			return fmt.Errorf("update %s invoice %d: %w", s.kind, inv.DolibarrID, err)
		}
		return s.replaceLines(ctx, tx, inv.DolibarrID, lines)
	})
}

// replaceLines drops every child row for the invoice and reinserts the full
// current set. Lines are never diffed individually.
func (s *invoiceStore) replaceLines(ctx context.Context, tx *sqlx.Tx, dolibarrID int64, lines []InvoiceLine) error {
	del := fmt.Sprintf(`DELETE FROM %s WHERE invoice_dolibarr_id = $1`, s.linesTable)
	if _, err := tx.ExecContext(ctx, del, dolibarrID); err != nil {
		return fmt.Errorf("delete lines for invoice %d: %w", dolibarrID, err)
	}
	if len(lines) == 0 {
		return nil
	}

	ins := fmt.Sprintf(`INSERT INTO %s (
		invoice_dolibarr_id, line_id, fk_product, product_ref, product_label,
		qty, unit_price_ht, vat_rate, total_ht, total_tva, total_ttc, accounting_code
	) VALUES (
		:invoice_dolibarr_id, :line_id, :fk_product, :product_ref, :product_label,
		:qty, :unit_price_ht, :vat_rate, :total_ht, :total_tva, :total_ttc, :accounting_code
	)`, s.linesTable)

	for i := range lines {
		lines[i].InvoiceDolibarrID = dolibarrID
	}
	if _, err := tx.NamedExecContext(ctx, ins, lines); err != nil {
		return fmt.Errorf("insert lines for invoice %d: %w", dolibarrID, err)
	}
	return nil
}

// ActiveValidated returns invoices with status >= 1 (validated or beyond)
// that the source still considers live, in ascending invoice-date order so
// derived piece numbers are reproducible.
func (s *invoiceStore) ActiveValidated(ctx context.Context) ([]Invoice, error) {
	query := fmt.Sprintf(`SELECT * FROM %s
		WHERE status >= 1 AND is_active = TRUE
		ORDER BY date_invoice NULLS LAST, dolibarr_id`, s.table)

	invoices := []Invoice{}
	if err := s.db.SelectContext(ctx, &invoices, query); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *invoiceStore) LinesByInvoice(ctx context.Context) (map[int64][]InvoiceLine, error) {
	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY invoice_dolibarr_id, line_id`, s.linesTable)

	lines := []InvoiceLine{}
	if err := s.db.SelectContext(ctx, &lines, query); err != nil {
		return nil, err
	}

	byInvoice := make(map[int64][]InvoiceLine, len(lines))
	for _, line := range lines {
		byInvoice[line.InvoiceDolibarrID] = append(byInvoice[line.InvoiceDolibarrID], line)
	}
	return byInvoice, nil
}

func (s *invoiceStore) TotalsByYear(ctx context.Context) ([]YearTotal, error) {
	query := fmt.Sprintf(`SELECT
		EXTRACT(YEAR FROM date_invoice)::int AS yr,
		COUNT(*)::int AS cnt,
		COALESCE(SUM(total_ttc), 0) AS total
	FROM %s
	WHERE is_active = TRUE AND date_invoice IS NOT NULL
	GROUP BY yr ORDER BY yr DESC`, s.table)

	totals := []YearTotal{}
	if err := s.db.SelectContext(ctx, &totals, query); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *invoiceStore) CountActive(ctx context.Context) (int, error) {
	var count int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE is_active = TRUE`, s.table)
	if err := s.db.GetContext(ctx, &count, query); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *invoiceStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
