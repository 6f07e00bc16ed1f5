package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hexametals/finsync/internal/store"
)

type fakeReports struct {
	lines []store.ReportLine
	got   store.ReportFilter
}

func (f *fakeReports) SupplierReportLines(_ context.Context, filter store.ReportFilter) ([]store.ReportLine, error) {
	f.got = filter
	return f.lines, nil
}

func str(s string) *string    { return &s }
func i64(n int64) *int64      { return &n }
func f64(f float64) *float64  { return &f }
func day(s string) *time.Time { t, _ := time.Parse("2006-01-02", s); return &t }

func sampleLines() []store.ReportLine {
	return []store.ReportLine{
		{
			InvoiceID: 10, InvoiceRef: "SI-10", DateInvoice: day("2024-03-01"),
			SupplierID: 42, SupplierName: str("Gulf Steel Trading"),
			ProjectID: i64(7), ProjectRef: str("PRJ-007"),
			TotalHT: 1000, TotalTVA: 150, TotalTTC: 1150,
			LineID: i64(1), ProductLabel: str("HEA 200 beams"),
			LineHT: f64(800), LineVAT: f64(120), LineTTC: f64(920),
			CostCategory: "Raw Material", AccountName: "Steel sections", ExpenseAccount: "601100",
		},
		{
			InvoiceID: 10, InvoiceRef: "SI-10", DateInvoice: day("2024-03-01"),
			SupplierID: 42, SupplierName: str("Gulf Steel Trading"),
			TotalHT: 1000, TotalTVA: 150, TotalTTC: 1150,
			LineID: i64(2), ProductLabel: str("Delivery"),
			LineHT: f64(200), LineVAT: f64(30), LineTTC: f64(230),
			CostCategory: "Logistics", AccountName: "Freight", ExpenseAccount: "624000",
		},
		{
			// Lineless invoice: LEFT JOIN produced NULL line columns.
			InvoiceID: 11, InvoiceRef: "SI-11", DateInvoice: day("2024-03-05"),
			SupplierID: 43,
			TotalHT:    500, TotalTVA: 75, TotalTTC: 575,
			CostCategory: "Raw Material", AccountName: "Expense", ExpenseAccount: "601000",
		},
	}
}

func testBuilder(lines []store.ReportLine) (*Builder, *fakeReports) {
	reports := &fakeReports{lines: lines}
	return NewBuilder(&store.Storage{Reports: reports}), reports
}

func TestJournalEntriesBuildsAndSummarizes(t *testing.T) {
	b, _ := testBuilder(sampleLines())

	out, err := b.JournalEntries(context.Background(), JournalParams{})
	require.NoError(t, err)

	require.Len(t, out.Data, 3)
	assert.Equal(t, "inv-10-line-1", out.Data[0].ID)
	assert.Equal(t, "HEA 200 beams", out.Data[0].Description)
	assert.Equal(t, "PRJ-007", out.Data[0].ProjectRef)

	// Lineless invoice falls back to header totals and the catch-all bucket.
	last := out.Data[2]
	assert.Equal(t, "inv-11", last.ID)
	assert.Equal(t, 500.0, last.AmountHT)
	assert.Equal(t, "Other / Unclassified", last.CostCategory)
	assert.Equal(t, "Supplier #43", last.SupplierName)

	assert.Equal(t, 1500.0, out.Summary.TotalHT)
	assert.Equal(t, 225.0, out.Summary.TotalVAT)
	assert.Equal(t, 1725.0, out.Summary.TotalTTC)
	assert.Equal(t, 3, out.Summary.EntryCount)
}

func TestJournalEntriesPagination(t *testing.T) {
	b, _ := testBuilder(sampleLines())

	out, err := b.JournalEntries(context.Background(), JournalParams{Page: 2, Limit: 2})
	require.NoError(t, err)

	assert.Len(t, out.Data, 1)
	assert.Equal(t, Pagination{Page: 2, Limit: 2, Total: 3, TotalPages: 2}, out.Pagination)
	// Summary still covers the full set.
	assert.Equal(t, 3, out.Summary.EntryCount)
}

func TestJournalEntriesPageBeyondEnd(t *testing.T) {
	b, _ := testBuilder(sampleLines())

	out, err := b.JournalEntries(context.Background(), JournalParams{Page: 9, Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, out.Data)
	assert.Equal(t, 3, out.Pagination.Total)
}

func TestJournalEntriesGroupByCategory(t *testing.T) {
	b, _ := testBuilder(sampleLines())

	out, err := b.JournalEntries(context.Background(), JournalParams{GroupBy: "category"})
	require.NoError(t, err)

	require.Len(t, out.CategorySummary, 3)
	raw := out.CategorySummary[0]
	assert.Equal(t, "Raw Material", raw.Category)
	assert.Equal(t, 800.0, raw.TotalHT)
	assert.Equal(t, 1, raw.Count)
	assert.Len(t, raw.Entries, 1)
	assert.InDelta(t, 53.33, raw.Percent, 0.01)

	var pct float64
	for _, g := range out.CategorySummary {
		pct += g.Percent
	}
	assert.InDelta(t, 100.0, pct, 0.01)
}

func TestAllBypassesPageSizeCap(t *testing.T) {
	var lines []store.ReportLine
	for i := 0; i < 600; i++ {
		lines = append(lines, store.ReportLine{
			InvoiceID: int64(i), InvoiceRef: "SI", SupplierID: 1,
			LineID: i64(1), LineHT: f64(10),
			CostCategory: "Consumables", AccountName: "x", ExpenseAccount: "601000",
		})
	}
	b, _ := testBuilder(lines)

	// Exports request everything in one page.
	out, err := b.JournalEntries(context.Background(), JournalParams{All: true})
	require.NoError(t, err)
	assert.Len(t, out.Data, 600)
	assert.Equal(t, Pagination{Page: 1, Limit: 600, Total: 600, TotalPages: 1}, out.Pagination)
	assert.Equal(t, 6000.0, out.Summary.TotalHT)

	// Plain API reads still clamp to the page-size cap.
	out, err = b.JournalEntries(context.Background(), JournalParams{Limit: 1 << 30})
	require.NoError(t, err)
	assert.Len(t, out.Data, maxPageSize)
	assert.Equal(t, 600, out.Pagination.Total)
}

func TestCategorySamplesAreCapped(t *testing.T) {
	var lines []store.ReportLine
	for i := 0; i < 30; i++ {
		lines = append(lines, store.ReportLine{
			InvoiceID: int64(i), InvoiceRef: "SI", SupplierID: 1,
			LineID: i64(1), LineHT: f64(10),
			CostCategory: "Consumables", AccountName: "x", ExpenseAccount: "601000",
		})
	}
	b, _ := testBuilder(lines)

	out, err := b.JournalEntries(context.Background(), JournalParams{GroupBy: "category"})
	require.NoError(t, err)

	require.Len(t, out.CategorySummary, 1)
	assert.Equal(t, 30, out.CategorySummary[0].Count)
	assert.Len(t, out.CategorySummary[0].Entries, categorySampleCap)
	assert.Equal(t, 300.0, out.CategorySummary[0].TotalHT)
}

func TestWriteCSV(t *testing.T) {
	entries := buildEntries(sampleLines())

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "2024-03-01", rows[1][0])
	assert.Equal(t, "800.00", rows[1][8])
}

func TestWriteXLSX(t *testing.T) {
	entries := buildEntries(sampleLines())

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, entries))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Journal Entries")
	require.NoError(t, err)
	// header + 3 entries + totals row
	require.Len(t, rows, 5)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "SI-10", rows[1][1])
	assert.Equal(t, "Total", rows[4][0])
}
