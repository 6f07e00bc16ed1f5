package journal

import (
	"context"
)

// Chart-of-accounts codes used by the deriver. The four configurable ones
// live in fin_config; the VAT accounts are fixed by the Saudi chart split
// between the standard 15% rate and reduced rates.
const (
	vatOutputHigh = "445711"
	vatOutputLow  = "445712"
	vatInputHigh  = "445661"
	vatInputLow   = "445662"

	// Rates at or above this post to the high-rate VAT accounts.
	highRateThreshold = 10.0

	bankFallbackCode = "120000"

	journalSales     = "VTE"
	journalPurchases = "ACH"
	journalBank      = "BQ"

	currencyCode = "SAR"
)

type Accounts struct {
	Receivable string
	Payable    string
	Revenue    string
	Expense    string
}

func LoadAccounts(ctx context.Context, cfg interface {
	Get(ctx context.Context, key, fallback string) (string, error)
}) (Accounts, error) {
	var acc Accounts
	var err error
	if acc.Receivable, err = cfg.Get(ctx, "account.receivable", "411000"); err != nil {
		return acc, err
	}
	if acc.Payable, err = cfg.Get(ctx, "account.payable", "401000"); err != nil {
		return acc, err
	}
	if acc.Revenue, err = cfg.Get(ctx, "account.revenue", "701000"); err != nil {
		return acc, err
	}
	if acc.Expense, err = cfg.Get(ctx, "account.expense", "601000"); err != nil {
		return acc, err
	}
	return acc, nil
}

// vatOutputAccount picks the collected-VAT account for a customer line rate.
func vatOutputAccount(rate float64) string {
	if rate >= highRateThreshold {
		return vatOutputHigh
	}
	return vatOutputLow
}

// vatInputAccount picks the deductible-VAT account for a supplier line rate.
func vatInputAccount(rate float64) string {
	if rate >= highRateThreshold {
		return vatInputHigh
	}
	return vatInputLow
}
