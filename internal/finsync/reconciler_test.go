package finsync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexametals/finsync/internal/dolibarr"
	"github.com/hexametals/finsync/internal/store"
)

type fakeFetcher struct {
	invoices     map[string][]json.RawMessage
	payments     map[int64][]dolibarr.Payment
	bankAccounts []dolibarr.BankAccount
	fetchErr     error
}

func (f *fakeFetcher) FetchAll(_ context.Context, resource string, _ func(int, int)) ([]json.RawMessage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.invoices[resource], nil
}

func (f *fakeFetcher) InvoicePayments(_ context.Context, _ string, invoiceID int64) ([]dolibarr.Payment, error) {
	return f.payments[invoiceID], nil
}

func (f *fakeFetcher) BankAccounts(_ context.Context) ([]dolibarr.BankAccount, error) {
	return f.bankAccounts, nil
}

type fakeInvoiceStore struct {
	kind     store.InvoiceKind
	hashes   map[int64]string
	inserted []*store.Invoice
	updated  []*store.Invoice
	lines    map[int64][]store.InvoiceLine
}

func newFakeInvoiceStore(kind store.InvoiceKind) *fakeInvoiceStore {
	return &fakeInvoiceStore{
		kind:   kind,
		hashes: map[int64]string{},
		lines:  map[int64][]store.InvoiceLine{},
	}
}

func (f *fakeInvoiceStore) Kind() store.InvoiceKind { return f.kind }

func (f *fakeInvoiceStore) GetSyncHash(_ context.Context, id int64) (string, bool, error) {
	h, ok := f.hashes[id]
	return h, ok, nil
}

func (f *fakeInvoiceStore) InsertWithLines(_ context.Context, inv *store.Invoice, lines []store.InvoiceLine) error {
	f.inserted = append(f.inserted, inv)
	f.hashes[inv.DolibarrID] = inv.SyncHash
	f.lines[inv.DolibarrID] = lines
	return nil
}

func (f *fakeInvoiceStore) UpdateWithLines(_ context.Context, inv *store.Invoice, lines []store.InvoiceLine) error {
	f.updated = append(f.updated, inv)
	f.hashes[inv.DolibarrID] = inv.SyncHash
	f.lines[inv.DolibarrID] = lines
	return nil
}

func (f *fakeInvoiceStore) ActiveValidated(context.Context) ([]store.Invoice, error) { return nil, nil }
func (f *fakeInvoiceStore) LinesByInvoice(context.Context) (map[int64][]store.InvoiceLine, error) {
	return f.lines, nil
}
func (f *fakeInvoiceStore) TotalsByYear(context.Context) ([]store.YearTotal, error) { return nil, nil }
func (f *fakeInvoiceStore) CountActive(context.Context) (int, error)                { return len(f.hashes), nil }

type fakePaymentStore struct {
	seen map[string]bool
}

func (f *fakePaymentStore) Upsert(_ context.Context, p *store.Payment) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	key := p.DolibarrRef + "/" + p.PaymentType
	created := !f.seen[key]
	f.seen[key] = true
	return created, nil
}

func (f *fakePaymentStore) SettledByType(context.Context, string) ([]store.SettledPayment, error) {
	return nil, nil
}

type fakeBankStore struct {
	hashes   map[int64]string
	inserted int
	updated  int
}

func (f *fakeBankStore) GetSyncHash(_ context.Context, id int64) (string, bool, error) {
	h, ok := f.hashes[id]
	return h, ok, nil
}

func (f *fakeBankStore) Insert(_ context.Context, a *store.BankAccount) error {
	f.hashes[a.DolibarrID] = a.SyncHash
	f.inserted++
	return nil
}

func (f *fakeBankStore) Update(_ context.Context, a *store.BankAccount) error {
	f.hashes[a.DolibarrID] = a.SyncHash
	f.updated++
	return nil
}

func (f *fakeBankStore) LedgerCodes(context.Context) (map[int64]string, error) { return nil, nil }

type fakeSyncLog struct {
	runs []store.SyncRun
}

func (f *fakeSyncLog) Record(_ context.Context, run *store.SyncRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeSyncLog) Latest(context.Context, int) ([]store.SyncRun, error) { return f.runs, nil }

type fakeLocks struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocks) AcquireSyncLock(context.Context) (func(), error) {
	if f.held {
		return nil, store.ErrSyncAlreadyRunning
	}
	f.acquired++
	return func() { f.released++ }, nil
}

func testStorage() (*store.Storage, *fakeInvoiceStore, *fakeInvoiceStore, *fakeSyncLog, *fakeLocks) {
	supplier := newFakeInvoiceStore(store.SupplierInvoices)
	customer := newFakeInvoiceStore(store.CustomerInvoices)
	syncLog := &fakeSyncLog{}
	locks := &fakeLocks{}
	st := &store.Storage{
		Supplier:     supplier,
		Customer:     customer,
		Payments:     &fakePaymentStore{},
		BankAccounts: &fakeBankStore{hashes: map[int64]string{}},
		SyncLog:      syncLog,
		Locks:        locks,
	}
	return st, supplier, customer, syncLog, locks
}

func rawInvoice(t *testing.T, inv dolibarr.Invoice) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(inv)
	require.NoError(t, err)
	return b
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestSyncInvoicesInsertsNewRecords(t *testing.T) {
	st, supplier, _, syncLog, _ := testStorage()
	fetcher := &fakeFetcher{invoices: map[string][]json.RawMessage{
		"supplierinvoices": {
			rawInvoice(t, dolibarr.Invoice{
				ID: "17", Ref: "FA-2024-017", RefSupplier: "SUP-REF-9", SocID: "42",
				Statut: "1", Paye: "0",
				TotalHT: "1000.00", TotalTVA: "150.00", TotalTTC: "1150.00",
				Date: "1717200000", DateEcheance: "1719792000",
				Lines: []dolibarr.Line{
					{RowID: "301", Qty: "2", Subprice: "500", TvaTx: "15", TotalHT: "1000", TotalTVA: "150", TotalTTC: "1150"},
				},
			}),
		},
	}}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)
	ids, run, err := r.SyncInvoices(context.Background(), store.SupplierInvoices, "test")
	require.NoError(t, err)

	assert.Equal(t, []int64{17}, ids)
	assert.Equal(t, 1, run.RecordsCreated)
	assert.Zero(t, run.RecordsUpdated)
	assert.Equal(t, store.SyncStatusSuccess, run.Status)

	require.Len(t, supplier.inserted, 1)
	inv := supplier.inserted[0]
	assert.Equal(t, "FA-2024-017", inv.Ref)
	assert.Equal(t, "SUP-REF-9", inv.RefCounterparty)
	assert.EqualValues(t, 42, inv.SocID)
	assert.Equal(t, 1150.0, inv.TotalTTC)
	assert.False(t, inv.IsPaid)
	assert.NotEmpty(t, inv.SyncHash)
	assert.JSONEq(t, string(fetcher.invoices["supplierinvoices"][0]), inv.RawPayload)
	require.Len(t, supplier.lines[17], 1)
	assert.EqualValues(t, 301, supplier.lines[17][0].LineID)

	require.Len(t, syncLog.runs, 1)
	assert.Equal(t, "supplier_invoices", syncLog.runs[0].EntityType)
}

func TestSyncInvoicesSkipsUnchanged(t *testing.T) {
	st, supplier, _, _, _ := testStorage()
	remote := dolibarr.Invoice{ID: "17", Ref: "FA-2024-017", Statut: "1", Paye: "0", TotalHT: "1000", TotalTVA: "150", TotalTTC: "1150"}
	supplier.hashes[17] = invoiceFingerprint(&remote)

	fetcher := &fakeFetcher{invoices: map[string][]json.RawMessage{
		"supplierinvoices": {rawInvoice(t, remote)},
	}}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)
	ids, run, err := r.SyncInvoices(context.Background(), store.SupplierInvoices, "test")
	require.NoError(t, err)

	assert.Equal(t, []int64{17}, ids)
	assert.Equal(t, 1, run.RecordsUnchanged)
	assert.Empty(t, supplier.inserted)
	assert.Empty(t, supplier.updated)
}

func TestSyncInvoicesUpdatesOnHashChange(t *testing.T) {
	st, supplier, _, _, _ := testStorage()
	supplier.hashes[17] = "stale"

	fetcher := &fakeFetcher{invoices: map[string][]json.RawMessage{
		"supplierinvoices": {rawInvoice(t, dolibarr.Invoice{ID: "17", Ref: "FA-2024-017", Statut: "1", Paye: "1", TotalTTC: "1150"})},
	}}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)
	_, run, err := r.SyncInvoices(context.Background(), store.SupplierInvoices, "test")
	require.NoError(t, err)

	assert.Equal(t, 1, run.RecordsUpdated)
	require.Len(t, supplier.updated, 1)
	assert.True(t, supplier.updated[0].IsPaid)
}

func TestSyncInvoicesCountsBadRecordsAsErrored(t *testing.T) {
	st, supplier, _, _, _ := testStorage()
	fetcher := &fakeFetcher{invoices: map[string][]json.RawMessage{
		"supplierinvoices": {
			json.RawMessage(`{"id": ["not a scalar"]}`),
			rawInvoice(t, dolibarr.Invoice{Ref: "no-id"}),
			rawInvoice(t, dolibarr.Invoice{ID: "5", Ref: "FA-OK", Statut: "1"}),
		},
	}}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)
	ids, run, err := r.SyncInvoices(context.Background(), store.SupplierInvoices, "test")
	require.NoError(t, err)

	assert.Equal(t, []int64{5}, ids)
	assert.Equal(t, 2, run.RecordsErrored)
	assert.Equal(t, 1, run.RecordsCreated)
	assert.Equal(t, store.SyncStatusPartial, run.Status)
	assert.Len(t, supplier.inserted, 1)
}

func TestSyncInvoicesRecordsFailedRunOnFetchError(t *testing.T) {
	st, _, _, syncLog, _ := testStorage()
	fetcher := &fakeFetcher{fetchErr: assert.AnError}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)
	_, _, err := r.SyncInvoices(context.Background(), store.SupplierInvoices, "test")
	require.Error(t, err)

	require.Len(t, syncLog.runs, 1)
	assert.Equal(t, store.SyncStatusError, syncLog.runs[0].Status)
	require.NotNil(t, syncLog.runs[0].ErrorMessage)
}

func TestSyncPaymentsUpserts(t *testing.T) {
	st, _, _, _, _ := testStorage()
	fetcher := &fakeFetcher{payments: map[int64][]dolibarr.Payment{
		17: {
			{Ref: "PAY-1", Amount: "500.00", Date: "1717300000", Type: "VIR", FkBankAccount: "3"},
			{Ref: "", Amount: "10"}, // no ref, no date: skipped
		},
	}}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)
	run, err := r.SyncPayments(context.Background(), store.SupplierInvoices, []int64{17}, "test")
	require.NoError(t, err)

	assert.Equal(t, 1, run.RecordsCreated)
	assert.Equal(t, 1, run.RecordsErrored)

	// Re-running the same sweep updates instead of creating.
	run, err = r.SyncPayments(context.Background(), store.SupplierInvoices, []int64{17}, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecordsUpdated)
}

func TestSyncBankAccountsHashDiff(t *testing.T) {
	st, _, _, _, _ := testStorage()
	bank := st.BankAccounts.(*fakeBankStore)
	fetcher := &fakeFetcher{bankAccounts: []dolibarr.BankAccount{
		{ID: "3", Ref: "BNK1", Label: "Main SAR", AccountNumber: "121000", CurrencyCode: "SAR", Balance: "50000", Clos: "0"},
	}}

	r := NewReconciler(fetcher, st, quietLogger(), time.Minute)

	run, err := r.SyncBankAccounts(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecordsCreated)
	assert.Equal(t, 1, bank.inserted)

	run, err = r.SyncBankAccounts(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecordsUnchanged)
	assert.Zero(t, bank.updated)

	fetcher.bankAccounts[0].Balance = "60000"
	run, err = r.SyncBankAccounts(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 1, run.RecordsUpdated)
	assert.Equal(t, 1, bank.updated)
}

func TestRunRefusesConcurrentSync(t *testing.T) {
	st, _, _, _, locks := testStorage()
	locks.held = true

	r := NewReconciler(&fakeFetcher{}, st, quietLogger(), time.Minute)
	err := r.Run(context.Background(), "test")
	assert.ErrorIs(t, err, store.ErrSyncAlreadyRunning)
}

func TestRunReleasesLock(t *testing.T) {
	st, _, _, syncLog, locks := testStorage()
	r := NewReconciler(&fakeFetcher{}, st, quietLogger(), time.Minute)

	require.NoError(t, r.Run(context.Background(), "test"))
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)

	// bank accounts + 2 invoice kinds + 2 payment sweeps
	assert.Len(t, syncLog.runs, 5)
}
