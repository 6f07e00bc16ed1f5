package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"Date", "Invoice", "Supplier", "Project", "Description",
	"Cost Category", "Account Code", "Account Name",
	"Amount HT", "VAT", "Amount TTC",
}

func exportRow(e Entry) []string {
	date := ""
	if e.Date != nil {
		date = e.Date.Format("2006-01-02")
	}
	return []string{
		date,
		e.InvoiceRef,
		e.SupplierName,
		e.ProjectRef,
		e.Description,
		e.CostCategory,
		e.AccountCode,
		e.AccountName,
		fmt.Sprintf("%.2f", e.AmountHT),
		fmt.Sprintf("%.2f", e.AmountVAT),
		fmt.Sprintf("%.2f", e.AmountTTC),
	}
}

// WriteCSV streams the full entry set (not the paginated window) as CSV.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(exportRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX renders the entries as a single-sheet workbook with a bold
// header and a totals row.
func WriteXLSX(w io.Writer, entries []Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Journal Entries"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", endHeader, headerStyle); err != nil {
		return err
	}

	for row, e := range entries {
		values := []any{
			"", e.InvoiceRef, e.SupplierName, e.ProjectRef, e.Description,
			e.CostCategory, e.AccountCode, e.AccountName,
			e.AmountHT, e.AmountVAT, e.AmountTTC,
		}
		if e.Date != nil {
			values[0] = e.Date.Format("2006-01-02")
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	s := summarize(entries)
	totalsRow := len(entries) + 2
	totals := map[int]any{1: "Total", 9: s.TotalHT, 10: s.TotalVAT, 11: s.TotalTTC}
	for col, v := range totals {
		cell, _ := excelize.CoordinatesToCellName(col, totalsRow)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(sheet, "A", "H", 18); err != nil {
		return err
	}
	return f.Write(w)
}
