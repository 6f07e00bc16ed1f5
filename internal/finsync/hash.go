package finsync

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"

	"github.com/hexametals/finsync/internal/dolibarr"
)

// Fingerprint hashes a set of watched fields into the change-detection token
// stored next to each synced row. encoding/json writes map keys in sorted
// order, so the same field values always produce the same digest regardless
// of how the map was built.
func Fingerprint(fields map[string]string) string {
	payload, _ := json.Marshal(fields)
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// invoiceFingerprint covers exactly the fields whose change matters for
// re-sync. Everything else on the record (lines included) rides along when
// one of these moves; a line edit in Dolibarr always touches the totals.
func invoiceFingerprint(inv *dolibarr.Invoice) string {
	return Fingerprint(map[string]string{
		"ref":           inv.Ref,
		"status":        invoiceStatus(inv),
		"paid":          invoicePaid(inv),
		"total_ht":      inv.TotalHT,
		"total_tva":     inv.TotalTVA,
		"total_ttc":     inv.TotalTTC,
		"date_echeance": inv.DateEcheance,
	})
}

func bankAccountFingerprint(acct *dolibarr.BankAccount) string {
	return Fingerprint(map[string]string{
		"ref":            acct.Ref,
		"label":          acct.Label,
		"bank":           acct.Bank,
		"account_number": acct.AccountNumber,
		"currency_code":  acct.CurrencyCode,
		"balance":        acct.Balance,
		"clos":           acct.Clos,
	})
}

// Dolibarr spells these fields differently between the customer and supplier
// modules ("statut" vs "status", "paye" vs "paid"); whichever is present wins.
func invoiceStatus(inv *dolibarr.Invoice) string {
	if inv.Statut != "" {
		return inv.Statut
	}
	return inv.Status
}

func invoicePaid(inv *dolibarr.Invoice) string {
	if inv.Paye != "" {
		return inv.Paye
	}
	return inv.Paid
}
