package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexametals/finsync/internal/report"
	"github.com/hexametals/finsync/internal/store"
)

type fakeReports struct {
	lines []store.ReportLine
}

func (f *fakeReports) SupplierReportLines(context.Context, store.ReportFilter) ([]store.ReportLine, error) {
	return f.lines, nil
}

type fakeSyncLog struct {
	runs     []store.SyncRun
	gotLimit int
}

func (f *fakeSyncLog) Record(_ context.Context, run *store.SyncRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeSyncLog) Latest(_ context.Context, limit int) ([]store.SyncRun, error) {
	f.gotLimit = limit
	if limit > len(f.runs) {
		limit = len(f.runs)
	}
	return f.runs[:limit], nil
}

type fakeLocks struct {
	held bool
}

func (f *fakeLocks) AcquireSyncLock(context.Context) (func(), error) {
	if f.held {
		return nil, store.ErrSyncAlreadyRunning
	}
	f.held = true
	return func() { f.held = false }, nil
}

func testApp(secret string) (*application, *fakeLocks) {
	locks := &fakeLocks{}
	storage := &store.Storage{
		Reports: &fakeReports{},
		SyncLog: &fakeSyncLog{runs: []store.SyncRun{{EntityType: "supplier_invoices", Status: store.SyncStatusSuccess}}},
		Locks:   locks,
	}
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return &application{
		config:  config{sessionSecret: secret},
		store:   storage,
		log:     log,
		reports: report.NewBuilder(storage),
	}, locks
}

func signSession(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestProtectedRoutesRejectMissingSession(t *testing.T) {
	app, _ := testApp("topsecret")
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/operations-control")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestProtectedRoutesRejectBadSignature(t *testing.T) {
	app, _ := testApp("topsecret")
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/financial/reports/ots-journal-entries?from=2024-01-01&to=2024-12-31", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: signSession(t, "wrong-secret")})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJournalReportRequiresDateRange(t *testing.T) {
	app, _ := testApp("topsecret")
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/financial/reports/ots-journal-entries", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: signSession(t, "topsecret")})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJournalReportEnvelope(t *testing.T) {
	app, _ := testApp("topsecret")
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/financial/reports/ots-journal-entries?from=2024-01-01&to=2024-12-31", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: signSession(t, "topsecret")})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Data       []any             `json:"data"`
		Pagination report.Pagination `json:"pagination"`
		Summary    report.Summary    `json:"summary"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Pagination.Page)
	assert.Zero(t, out.Summary.EntryCount)
}

func TestJournalReportExportCarriesFullSet(t *testing.T) {
	app, _ := testApp("")
	lines := make([]store.ReportLine, 600)
	for i := range lines {
		id := int64(i)
		lines[i] = store.ReportLine{
			InvoiceID: int64(i), InvoiceRef: "SI", SupplierID: 1,
			LineID: &id, CostCategory: "Consumables", ExpenseAccount: "601000",
		}
	}
	app.store.Reports = &fakeReports{lines: lines}
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/financial/reports/ots-journal-entries?from=2024-01-01&to=2024-12-31&export=excel")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 601) // header + every filtered line
}

func TestSyncHistory(t *testing.T) {
	app, _ := testApp("")
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/sync/history?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out GetSyncHistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Success)
	require.Len(t, out.Data, 1)
	assert.Equal(t, "supplier_invoices", out.Data[0].EntityType)
}

func TestSyncHistoryIgnoresBadLimit(t *testing.T) {
	app, _ := testApp("")
	syncLog := app.store.SyncLog.(*fakeSyncLog)
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	for _, raw := range []string{"-5", "0", "abc"} {
		resp, err := http.Get(srv.URL + "/v1/sync/history?limit=" + raw)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 20, syncLog.gotLimit)
	}
}

func TestTriggerSyncConflictsWhenLockHeld(t *testing.T) {
	app, locks := testApp("")
	locks.held = true
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/sync/run", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestNoSecretDisablesSessionCheck(t *testing.T) {
	app, _ := testApp("")
	srv := httptest.NewServer(app.mount())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/financial/reports/ots-journal-entries?from=2024-01-01&to=2024-12-31", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
