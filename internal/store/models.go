package store

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Invoice is one synced Dolibarr invoice, supplier or customer depending on
// which store it came from. RawPayload keeps the full API response verbatim
// for forensic replay; it is never parsed again after the sync that wrote it.
type Invoice struct {
	DolibarrID      int64      `db:"dolibarr_id" json:"dolibarr_id"`
	Ref             string     `db:"ref" json:"ref"`
	RefCounterparty string     `db:"ref_counterparty" json:"ref_counterparty"`
	SocID           int64      `db:"socid" json:"socid"`
	Type            int        `db:"type" json:"type"`
	Status          int        `db:"status" json:"status"`
	IsPaid          bool       `db:"is_paid" json:"is_paid"`
	TotalHT         float64    `db:"total_ht" json:"total_ht"`
	TotalTVA        float64    `db:"total_tva" json:"total_tva"`
	TotalTTC        float64    `db:"total_ttc" json:"total_ttc"`
	DateInvoice     *time.Time `db:"date_invoice" json:"date_invoice"`
	DateDue         *time.Time `db:"date_due" json:"date_due"`
	DateCreation    *time.Time `db:"date_creation" json:"date_creation"`
	FkProject       *int64     `db:"fk_project" json:"fk_project"`
	RawPayload      string     `db:"raw_payload" json:"-"`
	SyncHash        string     `db:"sync_hash" json:"-"`
	FirstSyncedAt   time.Time  `db:"first_synced_at" json:"first_synced_at"`
	LastSyncedAt    time.Time  `db:"last_synced_at" json:"last_synced_at"`
	IsActive        bool       `db:"is_active" json:"is_active"`
}

// InvoiceLine belongs to exactly one invoice and is always replaced wholesale
// when its parent is written.
type InvoiceLine struct {
	ID                int64   `db:"id" json:"id"`
	InvoiceDolibarrID int64   `db:"invoice_dolibarr_id" json:"invoice_dolibarr_id"`
	LineID            int64   `db:"line_id" json:"line_id"`
	FkProduct         int64   `db:"fk_product" json:"fk_product"`
	ProductRef        *string `db:"product_ref" json:"product_ref"`
	ProductLabel      *string `db:"product_label" json:"product_label"`
	Qty               float64 `db:"qty" json:"qty"`
	UnitPriceHT       float64 `db:"unit_price_ht" json:"unit_price_ht"`
	VatRate           float64 `db:"vat_rate" json:"vat_rate"`
	TotalHT           float64 `db:"total_ht" json:"total_ht"`
	TotalTVA          float64 `db:"total_tva" json:"total_tva"`
	TotalTTC          float64 `db:"total_ttc" json:"total_ttc"`
	AccountingCode    *string `db:"accounting_code" json:"accounting_code"`
}

type Payment struct {
	ID                int64     `db:"id" json:"id"`
	DolibarrRef       string    `db:"dolibarr_ref" json:"dolibarr_ref"`
	PaymentType       string    `db:"payment_type" json:"payment_type"`
	InvoiceDolibarrID int64     `db:"invoice_dolibarr_id" json:"invoice_dolibarr_id"`
	Amount            float64   `db:"amount" json:"amount"`
	PaymentDate       time.Time `db:"payment_date" json:"payment_date"`
	PaymentMethod     *string   `db:"payment_method" json:"payment_method"`
	BankAccountID     *int64    `db:"bank_account_id" json:"bank_account_id"`
	FirstSyncedAt     time.Time `db:"first_synced_at" json:"first_synced_at"`
	LastSyncedAt      time.Time `db:"last_synced_at" json:"last_synced_at"`
}

// SettledPayment is a payment joined with the invoice it settles, as the
// journal deriver consumes it.
type SettledPayment struct {
	Payment
	InvoiceRef string `db:"invoice_ref"`
	SocID      int64  `db:"socid"`
}

type BankAccount struct {
	DolibarrID    int64   `db:"dolibarr_id" json:"dolibarr_id"`
	Ref           string  `db:"ref" json:"ref"`
	Label         string  `db:"label" json:"label"`
	BankName      *string `db:"bank_name" json:"bank_name"`
	AccountNumber *string `db:"account_number" json:"account_number"`
	CurrencyCode  string  `db:"currency_code" json:"currency_code"`
	Balance       float64 `db:"balance" json:"balance"`
	IsOpen        bool    `db:"is_open" json:"is_open"`
	SyncHash      string  `db:"sync_hash" json:"-"`
}

// JournalEntry is one derived ledger line. Exactly one of Debit/Credit is
// non-zero. Non-locked entries are disposable and regenerated on every
// derivation run; locked entries are never touched.
type JournalEntry struct {
	ID           int64           `db:"id" json:"id"`
	EntryDate    time.Time       `db:"entry_date" json:"entry_date"`
	JournalCode  string          `db:"journal_code" json:"journal_code"`
	PieceNum     int64           `db:"piece_num" json:"piece_num"`
	AccountCode  string          `db:"account_code" json:"account_code"`
	Label        string          `db:"label" json:"label"`
	Debit        decimal.Decimal `db:"debit" json:"debit"`
	Credit       decimal.Decimal `db:"credit" json:"credit"`
	SourceType   string          `db:"source_type" json:"source_type"`
	SourceID     int64           `db:"source_id" json:"source_id"`
	SourceRef    string          `db:"source_ref" json:"source_ref"`
	ThirdpartyID *int64          `db:"thirdparty_id" json:"thirdparty_id"`
	CurrencyCode string          `db:"currency_code" json:"currency_code"`
	IsLocked     bool            `db:"is_locked" json:"is_locked"`
}

// SyncRun is one append-only audit row per reconciliation or derivation run.
type SyncRun struct {
	ID               int64     `db:"id" json:"id"`
	EntityType       string    `db:"entity_type" json:"entity_type"`
	Status           string    `db:"status" json:"status"`
	RecordsCreated   int       `db:"records_created" json:"records_created"`
	RecordsUpdated   int       `db:"records_updated" json:"records_updated"`
	RecordsUnchanged int       `db:"records_unchanged" json:"records_unchanged"`
	RecordsErrored   int       `db:"records_errored" json:"records_errored"`
	RecordsTotal     int       `db:"records_total" json:"records_total"`
	DurationMs       int64     `db:"duration_ms" json:"duration_ms"`
	TriggeredBy      string    `db:"triggered_by" json:"triggered_by"`
	ErrorMessage     *string   `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

const (
	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusError   = "error"
)

type RiskEvent struct {
	ID                  string         `db:"id" json:"id"`
	Severity            string         `db:"severity" json:"severity"`
	Type                string         `db:"type" json:"type"`
	Reason              string         `db:"reason" json:"reason"`
	RecommendedAction   string         `db:"recommended_action" json:"recommendedAction"`
	AffectedProjectIDs  pq.StringArray `db:"affected_project_ids" json:"affectedProjectIds"`
	AffectedWorkUnitIDs pq.StringArray `db:"affected_work_unit_ids" json:"affectedWorkUnitIds"`
	Fingerprint         string         `db:"fingerprint" json:"-"`
	DetectedAt          time.Time      `db:"detected_at" json:"detectedAt"`
	ResolvedAt          *time.Time     `db:"resolved_at" json:"resolvedAt"`
}

const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

const (
	RiskTypeDelay      = "DELAY"
	RiskTypeBottleneck = "BOTTLENECK"
	RiskTypeDependency = "DEPENDENCY"
	RiskTypeOverload   = "OVERLOAD"
)

type WorkUnit struct {
	ID              string `db:"id"`
	ReferenceModule string `db:"reference_module"`
	ReferenceID     string `db:"reference_id"`
}

type Project struct {
	ID            string `db:"id" json:"id"`
	ProjectNumber string `db:"project_number" json:"projectNumber"`
	Name          string `db:"name" json:"name"`
	Status        string `db:"status" json:"status"`
	ClientName    string `db:"client_name" json:"clientName"`
}

type AssemblyPart struct {
	ID              string     `db:"id"`
	ProjectNumber   string     `db:"project_number"`
	PartDesignation string     `db:"part_designation"`
	Name            string     `db:"name"`
	Profile         string     `db:"profile"`
	Grade           string     `db:"grade"`
	Quantity        float64    `db:"quantity"`
	WeightTotalKg   float64    `db:"weight_total_kg"`
	BuildingName    string     `db:"building_name"`
	SyncHash        string     `db:"sync_hash"`
	FirstSyncedAt   time.Time  `db:"first_synced_at"`
	LastSyncedAt    time.Time  `db:"last_synced_at"`
}

type ProductionLog struct {
	ID              int64      `db:"id"`
	PartDesignation string     `db:"part_designation"`
	Process         string     `db:"process"`
	ProcessedQty    float64    `db:"processed_qty"`
	ProcessDate     *time.Time `db:"process_date"`
	ProcessedBy     string     `db:"processed_by"`
	ReportNo        string     `db:"report_no"`
	SyncHash        string     `db:"sync_hash"`
}

// ReportLine is one supplier invoice line joined with its invoice,
// counterparty and cost-category mapping, as the journal report builds
// display entries from it.
type ReportLine struct {
	InvoiceID      int64      `db:"invoice_id"`
	InvoiceRef     string     `db:"invoice_ref"`
	DateInvoice    *time.Time `db:"date_invoice"`
	SupplierID     int64      `db:"supplier_id"`
	SupplierName   *string    `db:"supplier_name"`
	ProjectID      *int64     `db:"project_id"`
	ProjectRef     *string    `db:"project_ref"`
	TotalHT        float64    `db:"total_ht"`
	TotalTVA       float64    `db:"total_tva"`
	TotalTTC       float64    `db:"total_ttc"`
	LineID         *int64     `db:"line_id"`
	ProductLabel   *string    `db:"product_label"`
	ProductRef     *string    `db:"product_ref"`
	LineHT         *float64   `db:"line_ht"`
	LineVAT        *float64   `db:"line_vat"`
	LineTTC        *float64   `db:"line_ttc"`
	AccountingCode *string    `db:"accounting_code"`
	CostCategory   string     `db:"cost_category"`
	AccountName    string     `db:"account_name"`
	ExpenseAccount string     `db:"expense_account_code"`
}

type ReportFilter struct {
	From       time.Time
	To         time.Time
	ProjectID  *int64
	SupplierID *int64
	Category   string
}

// YearTotal backs the verification breakdowns the CLI scripts print.
type YearTotal struct {
	Year  int     `db:"yr"`
	Count int     `db:"cnt"`
	Total float64 `db:"total"`
}
