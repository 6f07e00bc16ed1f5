package report

import (
	"context"
	"fmt"
	"time"

	"github.com/hexametals/finsync/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500

	// Cap on per-category entry samples when grouping; the totals still
	// cover everything.
	categorySampleCap = 20

	uncategorized = "Other / Unclassified"
)

// Entry is one display row of the supplier journal report: an invoice line
// joined with its category mapping, or the invoice itself when it has no
// lines.
type Entry struct {
	ID           string     `json:"id"`
	Date         *time.Time `json:"date"`
	InvoiceRef   string     `json:"invoiceRef"`
	SupplierID   int64      `json:"supplierId"`
	SupplierName string     `json:"supplierName"`
	ProjectRef   string     `json:"projectRef,omitempty"`
	Description  string     `json:"description"`
	CostCategory string     `json:"costCategory"`
	AccountCode  string     `json:"accountCode"`
	AccountName  string     `json:"accountName"`
	AmountHT     float64    `json:"amountHt"`
	AmountVAT    float64    `json:"amountVat"`
	AmountTTC    float64    `json:"amountTtc"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Summary struct {
	TotalHT    float64 `json:"totalHt"`
	TotalVAT   float64 `json:"totalVat"`
	TotalTTC   float64 `json:"totalTtc"`
	EntryCount int     `json:"entryCount"`
}

type CategorySummary struct {
	Category string  `json:"category"`
	TotalHT  float64 `json:"totalHt"`
	Percent  float64 `json:"percent"`
	Count    int     `json:"count"`
	Entries  []Entry `json:"entries"`
}

type JournalReport struct {
	Data            []Entry           `json:"data"`
	Pagination      Pagination        `json:"pagination"`
	Summary         Summary           `json:"summary"`
	CategorySummary []CategorySummary `json:"categorySummary,omitempty"`
}

type JournalParams struct {
	Filter  store.ReportFilter
	GroupBy string
	Page    int
	Limit   int

	// All disables pagination and returns the full filtered set in one
	// page. Exports use it; the page-size cap still applies to API reads.
	All bool
}

type Builder struct {
	storage *store.Storage
}

func NewBuilder(storage *store.Storage) *Builder {
	return &Builder{storage: storage}
}

// JournalEntries builds the supplier journal report. Summary totals always
// cover the full filtered set; pagination only windows the entry list.
func (b *Builder) JournalEntries(ctx context.Context, p JournalParams) (*JournalReport, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}

	lines, err := b.storage.Reports.SupplierReportLines(ctx, p.Filter)
	if err != nil {
		return nil, fmt.Errorf("load report lines: %w", err)
	}

	entries := buildEntries(lines)

	report := &JournalReport{
		Summary: summarize(entries),
	}
	if p.GroupBy == "category" {
		report.CategorySummary = groupByCategory(entries, report.Summary.TotalHT)
	}

	total := len(entries)
	if p.All {
		p.Page = 1
		p.Limit = total
		if p.Limit < 1 {
			p.Limit = defaultPageSize
		}
	}
	report.Pagination = Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: (total + p.Limit - 1) / p.Limit,
	}

	start := (p.Page - 1) * p.Limit
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	report.Data = entries[start:end]
	return report, nil
}

// buildEntries turns joined rows into display entries. A lineless invoice
// (NULL line columns from the LEFT JOIN) becomes a single entry carrying the
// invoice totals so no spend disappears from the report.
func buildEntries(lines []store.ReportLine) []Entry {
	entries := make([]Entry, 0, len(lines))
	for _, l := range lines {
		e := Entry{
			Date:         l.DateInvoice,
			InvoiceRef:   l.InvoiceRef,
			SupplierID:   l.SupplierID,
			SupplierName: deref(l.SupplierName, fmt.Sprintf("Supplier #%d", l.SupplierID)),
			ProjectRef:   deref(l.ProjectRef, ""),
			CostCategory: l.CostCategory,
			AccountCode:  l.ExpenseAccount,
			AccountName:  l.AccountName,
		}
		if l.LineID == nil {
			e.ID = fmt.Sprintf("inv-%d", l.InvoiceID)
			e.Description = l.InvoiceRef
			e.CostCategory = uncategorized
			e.AmountHT = l.TotalHT
			e.AmountVAT = l.TotalTVA
			e.AmountTTC = l.TotalTTC
		} else {
			e.ID = fmt.Sprintf("inv-%d-line-%d", l.InvoiceID, *l.LineID)
			e.Description = deref(l.ProductLabel, deref(l.ProductRef, l.InvoiceRef))
			e.AmountHT = derefF(l.LineHT)
			e.AmountVAT = derefF(l.LineVAT)
			e.AmountTTC = derefF(l.LineTTC)
		}
		entries = append(entries, e)
	}
	return entries
}

func summarize(entries []Entry) Summary {
	s := Summary{EntryCount: len(entries)}
	for _, e := range entries {
		s.TotalHT += e.AmountHT
		s.TotalVAT += e.AmountVAT
		s.TotalTTC += e.AmountTTC
	}
	return s
}

// groupByCategory aggregates per cost category in first-seen order, keeping
// at most categorySampleCap sample entries per bucket.
func groupByCategory(entries []Entry, grandTotalHT float64) []CategorySummary {
	index := map[string]int{}
	var groups []CategorySummary
	for _, e := range entries {
		i, ok := index[e.CostCategory]
		if !ok {
			i = len(groups)
			index[e.CostCategory] = i
			groups = append(groups, CategorySummary{Category: e.CostCategory})
		}
		groups[i].TotalHT += e.AmountHT
		groups[i].Count++
		if len(groups[i].Entries) < categorySampleCap {
			groups[i].Entries = append(groups[i].Entries, e)
		}
	}
	if grandTotalHT != 0 {
		for i := range groups {
			groups[i].Percent = groups[i].TotalHT / grandTotalHT * 100
		}
	}
	return groups
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func derefF(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
