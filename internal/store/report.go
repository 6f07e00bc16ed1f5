package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type reportStore struct {
	db *sqlx.DB
}

// SupplierReportLines joins validated supplier invoices with their lines,
// counterparty names and the cost-category mapping. Invoices without lines
// still come back as one row with NULL line columns so the report never
// drops a non-zero invoice.
func (s *reportStore) SupplierReportLines(ctx context.Context, f ReportFilter) ([]ReportLine, error) {
	query := `SELECT
		si.dolibarr_id AS invoice_id,
		si.ref AS invoice_ref,
		si.date_invoice,
		si.socid AS supplier_id,
		tp.name AS supplier_name,
		si.fk_project AS project_id,
		pr.project_number AS project_ref,
		si.total_ht,
		si.total_tva,
		si.total_ttc,
		sil.id AS line_id,
		sil.product_label,
		sil.product_ref,
		sil.total_ht AS line_ht,
		sil.total_tva AS line_vat,
		sil.total_ttc AS line_ttc,
		sil.accounting_code,
		COALESCE(am.cost_category, 'Other / Unclassified') AS cost_category,
		COALESCE(am.account_label, sil.product_label, 'Expense') AS account_name,
		COALESCE(am.coa_code, '601000') AS expense_account_code
	FROM fin_supplier_invoices si
	LEFT JOIN thirdparties tp ON tp.dolibarr_id = si.socid
	LEFT JOIN projects pr ON pr.dolibarr_id = si.fk_project
	LEFT JOIN fin_supplier_invoice_lines sil ON sil.invoice_dolibarr_id = si.dolibarr_id
	LEFT JOIN fin_account_mapping am ON am.dolibarr_account_id = sil.accounting_code
	WHERE si.is_active = TRUE AND si.status >= 1
	  AND si.date_invoice BETWEEN $1 AND $2`

	args := []any{f.From, f.To}
	if f.ProjectID != nil {
		args = append(args, *f.ProjectID)
		query += fmt.Sprintf(` AND si.fk_project = $%d`, len(args))
	}
	if f.SupplierID != nil {
		args = append(args, *f.SupplierID)
		query += fmt.Sprintf(` AND si.socid = $%d`, len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(` AND COALESCE(am.cost_category, 'Other / Unclassified') = $%d`, len(args))
	}
	query += ` ORDER BY si.date_invoice DESC, si.ref, sil.id`

	lines := []ReportLine{}
	if err := s.db.SelectContext(ctx, &lines, query, args...); err != nil {
		return nil, err
	}
	return lines, nil
}
