package finsync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hexametals/finsync/internal/dolibarr"
	"github.com/hexametals/finsync/internal/store"
)

// Fetcher is the slice of the Dolibarr client the reconciler needs.
type Fetcher interface {
	FetchAll(ctx context.Context, resource string, onPage func(page, fetched int)) ([]json.RawMessage, error)
	InvoicePayments(ctx context.Context, resource string, invoiceID int64) ([]dolibarr.Payment, error)
	BankAccounts(ctx context.Context) ([]dolibarr.BankAccount, error)
}

// Reconciler pulls records from Dolibarr and mirrors them into the local
// tables by hash diff: unchanged records are skipped without a single write,
// changed ones are rewritten together with their lines, new ones inserted.
type Reconciler struct {
	fetcher  Fetcher
	storage  *store.Storage
	log      *logrus.Logger
	deadline time.Duration
}

func NewReconciler(fetcher Fetcher, storage *store.Storage, log *logrus.Logger, deadline time.Duration) *Reconciler {
	if deadline <= 0 {
		deadline = 30 * time.Minute
	}
	return &Reconciler{fetcher: fetcher, storage: storage, log: log, deadline: deadline}
}

func resourceFor(kind store.InvoiceKind) string {
	if kind == store.SupplierInvoices {
		return "supplierinvoices"
	}
	return "invoices"
}

// Run executes a full reconciliation pass: bank accounts, then supplier and
// customer invoices with their payments. The whole pass holds the sync
// advisory lock; a second caller gets store.ErrSyncAlreadyRunning instead of
// interleaving writes. Every entity type gets its own audit row whether it
// succeeded or not.
func (r *Reconciler) Run(ctx context.Context, triggeredBy string) error {
	release, err := r.storage.Locks.AcquireSyncLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	return r.RunLocked(ctx, triggeredBy)
}

// RunLocked is Run for callers that already hold the sync lock (the API
// trigger acquires it before answering so it can report a conflict).
func (r *Reconciler) RunLocked(ctx context.Context, triggeredBy string) error {
	ctx, cancel := context.WithTimeout(ctx, r.deadline)
	defer cancel()

	if _, err := r.SyncBankAccounts(ctx, triggeredBy); err != nil {
		return err
	}
	for _, kind := range []store.InvoiceKind{store.SupplierInvoices, store.CustomerInvoices} {
		ids, _, err := r.SyncInvoices(ctx, kind, triggeredBy)
		if err != nil {
			return err
		}
		if _, err := r.SyncPayments(ctx, kind, ids, triggeredBy); err != nil {
			return err
		}
	}
	return nil
}

// SyncInvoices reconciles one invoice kind and returns the Dolibarr ids of
// every fetched invoice (skipped ones included) so the caller can sweep their
// payments. A record that fails to decode or to write counts as errored and
// the run continues; only a fetch failure aborts.
func (r *Reconciler) SyncInvoices(ctx context.Context, kind store.InvoiceKind, triggeredBy string) ([]int64, *store.SyncRun, error) {
	started := time.Now()
	resource := resourceFor(kind)
	target := r.invoiceStorage(kind)

	raws, err := r.fetcher.FetchAll(ctx, resource, func(page, fetched int) {
		r.log.WithFields(logrus.Fields{"resource": resource, "page": page, "fetched": fetched}).Debug("fetched page")
	})
	if err != nil {
		r.recordFailure(ctx, string(kind)+"_invoices", triggeredBy, started, err)
		return nil, nil, fmt.Errorf("fetch %s: %w", resource, err)
	}

	run := &store.SyncRun{EntityType: string(kind) + "_invoices", TriggeredBy: triggeredBy}
	var ids []int64

	for _, raw := range raws {
		var remote dolibarr.Invoice
		if err := json.Unmarshal(raw, &remote); err != nil {
			run.RecordsErrored++
			r.log.WithError(err).Warn("undecodable invoice record")
			continue
		}
		id := toInt64(remote.ID)
		if id == 0 {
			run.RecordsErrored++
			r.log.WithField("ref", remote.Ref).Warn("invoice record without id")
			continue
		}
		ids = append(ids, id)

		hash := invoiceFingerprint(&remote)
		existing, found, err := target.GetSyncHash(ctx, id)
		if err != nil {
			run.RecordsErrored++
			r.log.WithError(err).WithField("id", id).Warn("hash lookup failed")
			continue
		}
		if found && existing == hash {
			run.RecordsUnchanged++
			continue
		}

		inv, lines := r.mapInvoice(kind, &remote, raw, hash)
		if found {
			err = target.UpdateWithLines(ctx, inv, lines)
		} else {
			err = target.InsertWithLines(ctx, inv, lines)
		}
		if err != nil {
			run.RecordsErrored++
			r.log.WithError(err).WithField("ref", remote.Ref).Warn("invoice write failed")
			continue
		}
		if found {
			run.RecordsUpdated++
		} else {
			run.RecordsCreated++
		}
	}

	r.finishRun(ctx, run, started)
	return ids, run, nil
}

// SyncPayments sweeps the payments of the given invoices. Payments have no
// usable hash on the Dolibarr side, so they upsert on their natural key
// (ref, type, invoice) instead.
func (r *Reconciler) SyncPayments(ctx context.Context, kind store.InvoiceKind, invoiceIDs []int64, triggeredBy string) (*store.SyncRun, error) {
	started := time.Now()
	resource := resourceFor(kind)
	run := &store.SyncRun{EntityType: string(kind) + "_payments", TriggeredBy: triggeredBy}

	for _, id := range invoiceIDs {
		payments, err := r.fetcher.InvoicePayments(ctx, resource, id)
		if err != nil {
			r.recordFailure(ctx, run.EntityType, triggeredBy, started, err)
			return nil, fmt.Errorf("fetch payments for %s/%d: %w", resource, id, err)
		}
		for _, p := range payments {
			date := epochTime(p.Date)
			if p.Ref == "" || date == nil {
				run.RecordsErrored++
				continue
			}
			created, err := r.storage.Payments.Upsert(ctx, &store.Payment{
				DolibarrRef:       p.Ref,
				PaymentType:       string(kind),
				InvoiceDolibarrID: id,
				Amount:            toFloat(p.Amount),
				PaymentDate:       *date,
				PaymentMethod:     optString(p.Type),
				BankAccountID:     optInt64(p.FkBankAccount),
			})
			if err != nil {
				run.RecordsErrored++
				r.log.WithError(err).WithField("ref", p.Ref).Warn("payment write failed")
				continue
			}
			if created {
				run.RecordsCreated++
			} else {
				run.RecordsUpdated++
			}
		}
	}

	r.finishRun(ctx, run, started)
	return run, nil
}

// SyncBankAccounts reconciles the chart of bank accounts, hash-diffed the
// same way invoices are.
func (r *Reconciler) SyncBankAccounts(ctx context.Context, triggeredBy string) (*store.SyncRun, error) {
	started := time.Now()
	run := &store.SyncRun{EntityType: "bank_accounts", TriggeredBy: triggeredBy}

	accounts, err := r.fetcher.BankAccounts(ctx)
	if err != nil {
		r.recordFailure(ctx, run.EntityType, triggeredBy, started, err)
		return nil, fmt.Errorf("fetch bank accounts: %w", err)
	}

	for i := range accounts {
		remote := &accounts[i]
		id := toInt64(remote.ID)
		if id == 0 {
			run.RecordsErrored++
			continue
		}
		hash := bankAccountFingerprint(remote)
		existing, found, err := r.storage.BankAccounts.GetSyncHash(ctx, id)
		if err != nil {
			run.RecordsErrored++
			continue
		}
		if found && existing == hash {
			run.RecordsUnchanged++
			continue
		}

		acct := &store.BankAccount{
			DolibarrID:    id,
			Ref:           remote.Ref,
			Label:         remote.Label,
			BankName:      optString(remote.Bank),
			AccountNumber: optString(remote.AccountNumber),
			CurrencyCode:  remote.CurrencyCode,
			Balance:       toFloat(remote.Balance),
			IsOpen:        remote.Clos != "1",
			SyncHash:      hash,
		}
		if found {
			err = r.storage.BankAccounts.Update(ctx, acct)
		} else {
			err = r.storage.BankAccounts.Insert(ctx, acct)
		}
		if err != nil {
			run.RecordsErrored++
			r.log.WithError(err).WithField("ref", remote.Ref).Warn("bank account write failed")
			continue
		}
		if found {
			run.RecordsUpdated++
		} else {
			run.RecordsCreated++
		}
	}

	r.finishRun(ctx, run, started)
	return run, nil
}

func (r *Reconciler) invoiceStorage(kind store.InvoiceKind) store.InvoiceStorage {
	if kind == store.SupplierInvoices {
		return r.storage.Supplier
	}
	return r.storage.Customer
}

func (r *Reconciler) mapInvoice(kind store.InvoiceKind, remote *dolibarr.Invoice, raw json.RawMessage, hash string) (*store.Invoice, []store.InvoiceLine) {
	refCounterparty := remote.RefClient
	if kind == store.SupplierInvoices {
		refCounterparty = remote.RefSupplier
	}

	inv := &store.Invoice{
		DolibarrID:      toInt64(remote.ID),
		Ref:             remote.Ref,
		RefCounterparty: refCounterparty,
		SocID:           toInt64(remote.SocID),
		Type:            toInt(remote.Type),
		Status:          toInt(invoiceStatus(remote)),
		IsPaid:          invoicePaid(remote) == "1",
		TotalHT:         toFloat(remote.TotalHT),
		TotalTVA:        toFloat(remote.TotalTVA),
		TotalTTC:        toFloat(remote.TotalTTC),
		DateInvoice:     epochTime(remote.Date),
		DateDue:         epochTime(remote.DateEcheance),
		DateCreation:    epochTime(remote.DateCreation),
		FkProject:       optInt64(remote.FkProject),
		RawPayload:      string(raw),
		SyncHash:        hash,
	}

	lines := make([]store.InvoiceLine, 0, len(remote.Lines))
	for _, l := range remote.Lines {
		label := l.ProductLabel
		if label == "" {
			label = l.Label
		}
		lines = append(lines, store.InvoiceLine{
			InvoiceDolibarrID: inv.DolibarrID,
			LineID:            toInt64(l.RowID),
			FkProduct:         toInt64(l.FkProduct),
			ProductRef:        optString(l.ProductRef),
			ProductLabel:      optString(label),
			Qty:               toFloat(l.Qty),
			UnitPriceHT:       toFloat(l.Subprice),
			VatRate:           toFloat(l.TvaTx),
			TotalHT:           toFloat(l.TotalHT),
			TotalTVA:          toFloat(l.TotalTVA),
			TotalTTC:          toFloat(l.TotalTTC),
			AccountingCode:    optString(l.FkAccountingAccount),
		})
	}
	return inv, lines
}

func (r *Reconciler) finishRun(ctx context.Context, run *store.SyncRun, started time.Time) {
	run.RecordsTotal = run.RecordsCreated + run.RecordsUpdated + run.RecordsUnchanged + run.RecordsErrored
	run.DurationMs = time.Since(started).Milliseconds()
	run.Status = store.SyncStatusSuccess
	if run.RecordsErrored > 0 {
		run.Status = store.SyncStatusPartial
	}

	if err := r.storage.SyncLog.Record(ctx, run); err != nil {
		r.log.WithError(err).Warn("could not record sync run")
	}
	r.log.WithFields(logrus.Fields{
		"entity":    run.EntityType,
		"created":   run.RecordsCreated,
		"updated":   run.RecordsUpdated,
		"unchanged": run.RecordsUnchanged,
		"errored":   run.RecordsErrored,
		"ms":        run.DurationMs,
	}).Info("sync run finished")
}

func (r *Reconciler) recordFailure(ctx context.Context, entityType, triggeredBy string, started time.Time, cause error) {
	msg := cause.Error()
	run := &store.SyncRun{
		EntityType:   entityType,
		Status:       store.SyncStatusError,
		TriggeredBy:  triggeredBy,
		DurationMs:   time.Since(started).Milliseconds(),
		ErrorMessage: &msg,
	}
	if err := r.storage.SyncLog.Record(ctx, run); err != nil {
		r.log.WithError(err).Warn("could not record failed sync run")
	}
}
