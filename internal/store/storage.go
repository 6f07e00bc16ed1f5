package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type InvoiceKind string

const (
	SupplierInvoices InvoiceKind = "supplier"
	CustomerInvoices InvoiceKind = "customer"
)

type Storage struct {
	Supplier InvoiceStorage
	Customer InvoiceStorage

	Payments interface {
		Upsert(ctx context.Context, p *Payment) (created bool, err error)
		SettledByType(ctx context.Context, paymentType string) ([]SettledPayment, error)
	}

	BankAccounts interface {
		GetSyncHash(ctx context.Context, dolibarrID int64) (hash string, found bool, err error)
		Insert(ctx context.Context, acct *BankAccount) error
		Update(ctx context.Context, acct *BankAccount) error
		LedgerCodes(ctx context.Context) (map[int64]string, error)
	}

	Journal interface {
		ReplaceNonLocked(ctx context.Context, entries []JournalEntry) (int, error)
		DebitTotalsByYear(ctx context.Context) ([]YearTotal, error)
		Count(ctx context.Context) (int, error)
	}

	SyncLog interface {
		Record(ctx context.Context, run *SyncRun) error
		Latest(ctx context.Context, limit int) ([]SyncRun, error)
	}

	Config interface {
		Get(ctx context.Context, key, fallback string) (string, error)
	}

	Risks interface {
		Unresolved(ctx context.Context) ([]RiskEvent, error)
	}

	Ops interface {
		WorkUnits(ctx context.Context, ids []string) ([]WorkUnit, error)
		ReferenceExists(ctx context.Context, module, referenceID string) (bool, error)
		ReferenceName(ctx context.Context, module, referenceID string) (string, error)
		ProjectsByIDs(ctx context.Context, ids []string) ([]Project, error)
		AssemblyPartHash(ctx context.Context, partDesignation string) (hash string, found bool, err error)
		UpsertAssemblyPart(ctx context.Context, part *AssemblyPart) error
		ProductionLogHash(ctx context.Context, partDesignation, process, reportNo string) (hash string, found bool, err error)
		UpsertProductionLog(ctx context.Context, plog *ProductionLog) error
	}

	Reports interface {
		SupplierReportLines(ctx context.Context, f ReportFilter) ([]ReportLine, error)
	}

	Locks interface {
		AcquireSyncLock(ctx context.Context) (release func(), err error)
	}
}

// InvoiceStorage is the per-kind invoice table access the reconciler and the
// journal deriver run against. Parent and lines always move together: the
// insert/update methods wrap the parent write and the full line replacement
// in one transaction.
type InvoiceStorage interface {
	Kind() InvoiceKind
	GetSyncHash(ctx context.Context, dolibarrID int64) (hash string, found bool, err error)
	InsertWithLines(ctx context.Context, inv *Invoice, lines []InvoiceLine) error
	UpdateWithLines(ctx context.Context, inv *Invoice, lines []InvoiceLine) error
	ActiveValidated(ctx context.Context) ([]Invoice, error)
	LinesByInvoice(ctx context.Context) (map[int64][]InvoiceLine, error)
	TotalsByYear(ctx context.Context) ([]YearTotal, error)
	CountActive(ctx context.Context) (int, error)
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		Supplier: &invoiceStore{
			db:         db,
			kind:       SupplierInvoices,
			table:      "fin_supplier_invoices",
			linesTable: "fin_supplier_invoice_lines",
		},
		Customer: &invoiceStore{
			db:         db,
			kind:       CustomerInvoices,
			table:      "fin_customer_invoices",
			linesTable: "fin_customer_invoice_lines",
		},
		Payments:     &paymentStore{db: db},
		BankAccounts: &bankAccountStore{db: db},
		Journal:      &journalStore{db: db, chunkSize: journalInsertChunk},
		SyncLog:      &syncLogStore{db: db},
		Config:       &configStore{db: db},
		Risks:        &riskStore{db: db},
		Ops:          &opsStore{db: db},
		Reports:      &reportStore{db: db},
		Locks:        &lockStore{db: db},
	}
}

func now() time.Time { return time.Now().UTC() }
