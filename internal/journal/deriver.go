package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hexametals/finsync/internal/store"
)

// ErrUnbalancedEntry aborts a derivation run when a piece's debits and
// credits do not cancel out. Nothing is written in that case: the old
// entries survive and the imbalance has to be investigated at the source.
var ErrUnbalancedEntry = errors.New("journal piece does not balance")

// Deriver rebuilds the double-entry journal from the synced invoice and
// payment tables. Non-locked entries are disposable: every run wipes and
// re-derives them in one transaction, so the journal is always a pure
// function of the synced state. Locked entries are never touched.
type Deriver struct {
	storage *store.Storage
	log     *logrus.Logger
}

func NewDeriver(storage *store.Storage, log *logrus.Logger) *Deriver {
	return &Deriver{storage: storage, log: log}
}

type Summary struct {
	Entries    int
	Pieces     int
	DurationMs int64
}

// piece is one balanced journal transaction before numbering. seq keeps the
// sort stable for same-day pieces.
type piece struct {
	date    time.Time
	seq     int
	entries []store.JournalEntry
}

func (d *Deriver) Regenerate(ctx context.Context, triggeredBy string) (*Summary, error) {
	started := time.Now()

	summary, err := d.regenerate(ctx)
	if err != nil {
		d.recordRun(ctx, &store.SyncRun{
			EntityType:   "journal_entries",
			Status:       store.SyncStatusError,
			TriggeredBy:  triggeredBy,
			DurationMs:   time.Since(started).Milliseconds(),
			ErrorMessage: ptr(err.Error()),
		})
		return nil, err
	}

	summary.DurationMs = time.Since(started).Milliseconds()
	d.recordRun(ctx, &store.SyncRun{
		EntityType:     "journal_entries",
		Status:         store.SyncStatusSuccess,
		RecordsCreated: summary.Entries,
		RecordsTotal:   summary.Entries,
		TriggeredBy:    triggeredBy,
		DurationMs:     summary.DurationMs,
	})
	d.log.WithFields(logrus.Fields{
		"entries": summary.Entries,
		"pieces":  summary.Pieces,
		"ms":      summary.DurationMs,
	}).Info("journal regenerated")
	return summary, nil
}

func (d *Deriver) regenerate(ctx context.Context) (*Summary, error) {
	acc, err := LoadAccounts(ctx, d.storage.Config)
	if err != nil {
		return nil, fmt.Errorf("load account codes: %w", err)
	}
	ledger, err := d.storage.BankAccounts.LedgerCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bank ledger codes: %w", err)
	}

	var pieces []piece

	pieces, err = d.appendInvoicePieces(ctx, pieces, acc, store.CustomerInvoices)
	if err != nil {
		return nil, err
	}
	pieces, err = d.appendInvoicePieces(ctx, pieces, acc, store.SupplierInvoices)
	if err != nil {
		return nil, err
	}
	pieces, err = d.appendPaymentPieces(ctx, pieces, acc, ledger, store.CustomerInvoices)
	if err != nil {
		return nil, err
	}
	pieces, err = d.appendPaymentPieces(ctx, pieces, acc, ledger, store.SupplierInvoices)
	if err != nil {
		return nil, err
	}

	entries, err := number(pieces)
	if err != nil {
		return nil, err
	}

	count, err := d.storage.Journal.ReplaceNonLocked(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("replace journal entries: %w", err)
	}
	return &Summary{Entries: count, Pieces: len(pieces)}, nil
}

func (d *Deriver) appendInvoicePieces(ctx context.Context, pieces []piece, acc Accounts, kind store.InvoiceKind) ([]piece, error) {
	st := d.storage.Supplier
	if kind == store.CustomerInvoices {
		st = d.storage.Customer
	}
	invoices, err := st.ActiveValidated(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s invoices: %w", kind, err)
	}
	lines, err := st.LinesByInvoice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s invoice lines: %w", kind, err)
	}

	for i := range invoices {
		inv := &invoices[i]
		var p piece
		if kind == store.CustomerInvoices {
			p = customerPiece(acc, inv, lines[inv.DolibarrID])
		} else {
			p = supplierPiece(acc, inv, lines[inv.DolibarrID])
		}
		p.seq = len(pieces)
		pieces = append(pieces, p)
	}
	return pieces, nil
}

func (d *Deriver) appendPaymentPieces(ctx context.Context, pieces []piece, acc Accounts, ledger map[int64]string, kind store.InvoiceKind) ([]piece, error) {
	payments, err := d.storage.Payments.SettledByType(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("load %s payments: %w", kind, err)
	}
	for i := range payments {
		p := paymentPiece(acc, ledger, kind, &payments[i])
		p.seq = len(pieces)
		pieces = append(pieces, p)
	}
	return pieces, nil
}

// number orders pieces by date, assigns monotonic piece numbers, and
// verifies that every piece balances before anything is written.
func number(pieces []piece) ([]store.JournalEntry, error) {
	sort.SliceStable(pieces, func(i, j int) bool {
		if pieces[i].date.Equal(pieces[j].date) {
			return pieces[i].seq < pieces[j].seq
		}
		return pieces[i].date.Before(pieces[j].date)
	})

	var entries []store.JournalEntry
	for n, p := range pieces {
		balance := decimal.Zero
		for i := range p.entries {
			p.entries[i].PieceNum = int64(n + 1)
			p.entries[i].EntryDate = p.date
			balance = balance.Add(p.entries[i].Debit).Sub(p.entries[i].Credit)
		}
		if !balance.IsZero() {
			ref := ""
			if len(p.entries) > 0 {
				ref = p.entries[0].SourceRef
			}
			return nil, fmt.Errorf("%w: %s off by %s", ErrUnbalancedEntry, ref, balance.String())
		}
		entries = append(entries, p.entries...)
	}
	return entries, nil
}

// customerPiece derives the sales-journal transaction for one customer
// invoice: receivable debited for the TTC total, revenue credited per VAT
// rate, collected VAT credited per rate. Credit notes (type 2) invert every
// side.
func customerPiece(acc Accounts, inv *store.Invoice, lines []store.InvoiceLine) piece {
	creditNote := inv.Type == 2
	label := fmt.Sprintf("Customer invoice %s", inv.Ref)
	if creditNote {
		label = fmt.Sprintf("Customer credit note %s", inv.Ref)
	}

	p := piece{date: invoiceDate(inv)}
	add := func(account, entryLabel string, debit, credit decimal.Decimal) {
		p.entries = append(p.entries, newEntry(
			journalSales, account, entryLabel, debit, credit, creditNote,
			"customer_invoice", inv,
		))
	}

	add(acc.Receivable, label, dec(inv.TotalTTC), decimal.Zero)

	groups := groupByRate(lines)
	if len(groups) == 0 {
		// Headless invoice: derive from the header totals so the piece
		// still balances.
		add(acc.Revenue, label, decimal.Zero, dec(inv.TotalHT))
		if inv.TotalTVA != 0 {
			add(vatOutputAccount(effectiveRate(inv)), label+" VAT", decimal.Zero, dec(inv.TotalTVA))
		}
		return p
	}

	for _, g := range groups {
		add(acc.Revenue, fmt.Sprintf("%s revenue %.1f%%", inv.Ref, g.rate), decimal.Zero, g.ht)
		if !g.tva.IsZero() {
			add(vatOutputAccount(g.rate), fmt.Sprintf("%s VAT %.1f%%", inv.Ref, g.rate), decimal.Zero, g.tva)
		}
	}
	return p
}

// supplierPiece mirrors customerPiece on the purchases side: expenses and
// deductible VAT debited, payable credited for the TTC total.
func supplierPiece(acc Accounts, inv *store.Invoice, lines []store.InvoiceLine) piece {
	creditNote := inv.Type == 2
	label := fmt.Sprintf("Supplier invoice %s", inv.Ref)
	if creditNote {
		label = fmt.Sprintf("Supplier credit note %s", inv.Ref)
	}

	p := piece{date: invoiceDate(inv)}
	add := func(account, entryLabel string, debit, credit decimal.Decimal) {
		p.entries = append(p.entries, newEntry(
			journalPurchases, account, entryLabel, debit, credit, creditNote,
			"supplier_invoice", inv,
		))
	}

	groups := groupByRate(lines)
	if len(groups) == 0 {
		add(acc.Expense, label, dec(inv.TotalHT), decimal.Zero)
		if inv.TotalTVA != 0 {
			add(vatInputAccount(effectiveRate(inv)), label+" VAT", dec(inv.TotalTVA), decimal.Zero)
		}
	} else {
		for _, g := range groups {
			add(acc.Expense, fmt.Sprintf("%s expense %.1f%%", inv.Ref, g.rate), g.ht, decimal.Zero)
			if !g.tva.IsZero() {
				add(vatInputAccount(g.rate), fmt.Sprintf("%s VAT %.1f%%", inv.Ref, g.rate), g.tva, decimal.Zero)
			}
		}
	}

	add(acc.Payable, label, decimal.Zero, dec(inv.TotalTTC))
	return p
}

// paymentPiece is the two-line bank-journal transaction settling an invoice.
// The bank side posts to the account's configured ledger code, falling back
// to the generic bank account when none is mapped.
func paymentPiece(acc Accounts, ledger map[int64]string, kind store.InvoiceKind, payment *store.SettledPayment) piece {
	bankCode := bankFallbackCode
	if payment.BankAccountID != nil {
		if code, ok := ledger[*payment.BankAccountID]; ok {
			bankCode = code
		}
	}

	label := fmt.Sprintf("Payment %s (%s)", payment.DolibarrRef, payment.InvoiceRef)
	amount := dec(payment.Amount)
	socID := payment.SocID

	entry := func(account string, debit, credit decimal.Decimal) store.JournalEntry {
		return store.JournalEntry{
			JournalCode:  journalBank,
			AccountCode:  account,
			Label:        label,
			Debit:        debit,
			Credit:       credit,
			SourceType:   string(kind) + "_payment",
			SourceID:     payment.ID,
			SourceRef:    payment.DolibarrRef,
			ThirdpartyID: &socID,
			CurrencyCode: currencyCode,
		}
	}

	p := piece{date: payment.PaymentDate}
	if kind == store.CustomerInvoices {
		p.entries = append(p.entries,
			entry(bankCode, amount, decimal.Zero),
			entry(acc.Receivable, decimal.Zero, amount),
		)
	} else {
		p.entries = append(p.entries,
			entry(acc.Payable, amount, decimal.Zero),
			entry(bankCode, decimal.Zero, amount),
		)
	}
	return p
}

func newEntry(journalCode, account, label string, debit, credit decimal.Decimal, invert bool, sourceType string, inv *store.Invoice) store.JournalEntry {
	if invert {
		debit, credit = credit, debit
	}
	socID := inv.SocID
	return store.JournalEntry{
		JournalCode:  journalCode,
		AccountCode:  account,
		Label:        label,
		Debit:        debit,
		Credit:       credit,
		SourceType:   sourceType,
		SourceID:     inv.DolibarrID,
		SourceRef:    inv.Ref,
		ThirdpartyID: &socID,
		CurrencyCode: currencyCode,
	}
}

type rateGroup struct {
	rate float64
	ht   decimal.Decimal
	tva  decimal.Decimal
}

// groupByRate folds invoice lines into one HT/VAT bucket per VAT rate,
// ordered by rate so derivation output is deterministic.
func groupByRate(lines []store.InvoiceLine) []rateGroup {
	byRate := map[float64]*rateGroup{}
	for _, l := range lines {
		g, ok := byRate[l.VatRate]
		if !ok {
			g = &rateGroup{rate: l.VatRate, ht: decimal.Zero, tva: decimal.Zero}
			byRate[l.VatRate] = g
		}
		g.ht = g.ht.Add(dec(l.TotalHT))
		g.tva = g.tva.Add(dec(l.TotalTVA))
	}

	groups := make([]rateGroup, 0, len(byRate))
	for _, g := range byRate {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].rate < groups[j].rate })
	return groups
}

func invoiceDate(inv *store.Invoice) time.Time {
	if inv.DateInvoice != nil {
		return *inv.DateInvoice
	}
	if inv.DateCreation != nil {
		return *inv.DateCreation
	}
	return inv.FirstSyncedAt
}

// effectiveRate estimates the VAT rate of a headless invoice from its totals.
func effectiveRate(inv *store.Invoice) float64 {
	if inv.TotalHT == 0 {
		return 0
	}
	return inv.TotalTVA / inv.TotalHT * 100
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func ptr(s string) *string { return &s }

func (d *Deriver) recordRun(ctx context.Context, run *store.SyncRun) {
	if err := d.storage.SyncLog.Record(ctx, run); err != nil {
		d.log.WithError(err).Warn("could not record derivation run")
	}
}
