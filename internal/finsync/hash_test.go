package finsync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexametals/finsync/internal/dolibarr"
)

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := Fingerprint(map[string]string{"ref": "FA-1", "status": "1", "total_ttc": "115.00"})
	b := Fingerprint(map[string]string{"total_ttc": "115.00", "status": "1", "ref": "FA-1"})
	assert.Equal(t, a, b)
}

func TestFingerprintChangesWithValues(t *testing.T) {
	a := Fingerprint(map[string]string{"ref": "FA-1", "paid": "0"})
	b := Fingerprint(map[string]string{"ref": "FA-1", "paid": "1"})
	assert.NotEqual(t, a, b)
}

func TestInvoiceFingerprintIgnoresUnwatchedFields(t *testing.T) {
	base := dolibarr.Invoice{Ref: "FA-1", Statut: "1", Paye: "0", TotalHT: "100", TotalTVA: "15", TotalTTC: "115", DateEcheance: "1700000000"}

	changed := base
	changed.DateCreation = "1690000000"
	changed.SocID = "42"
	assert.Equal(t, invoiceFingerprint(&base), invoiceFingerprint(&changed))

	paid := base
	paid.Paye = "1"
	assert.NotEqual(t, invoiceFingerprint(&base), invoiceFingerprint(&paid))
}

func TestInvoiceFingerprintFieldFallbacks(t *testing.T) {
	supplier := dolibarr.Invoice{Ref: "FA-1", Statut: "2", Paye: "1"}
	customer := dolibarr.Invoice{Ref: "FA-1", Status: "2", Paid: "1"}
	assert.Equal(t, invoiceFingerprint(&supplier), invoiceFingerprint(&customer))
}

func TestCoercions(t *testing.T) {
	assert.Equal(t, 115.5, toFloat("115.50"))
	assert.Zero(t, toFloat("not-a-number"))
	assert.Zero(t, toFloat(""))

	assert.EqualValues(t, 42, toInt64("42"))
	assert.Zero(t, toInt64("null"))

	ts := epochTime("1700000000")
	if assert.NotNil(t, ts) {
		assert.Equal(t, int64(1700000000), ts.Unix())
		assert.Equal(t, "UTC", ts.Location().String())
	}
	assert.Nil(t, epochTime(""))
	assert.Nil(t, epochTime("0"))
	assert.Nil(t, epochTime("-1"))

	assert.Nil(t, optInt64("0"))
	assert.Nil(t, optString(""))
}
