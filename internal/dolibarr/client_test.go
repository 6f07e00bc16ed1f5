package dolibarr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: time.Second, MaxRetries: 2})
	require.NoError(t, err)
	return c, srv
}

func TestFetchPageSendsContract(t *testing.T) {
	var got *http.Request
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		fmt.Fprint(w, `[{"id":"1"}]`)
	})

	records, err := c.FetchPage(context.Background(), "supplierinvoices", 2, 100)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	assert.Equal(t, "/supplierinvoices", got.URL.Path)
	assert.Equal(t, "test-key", got.Header.Get("DOLAPIKEY"))
	q := got.URL.Query()
	assert.Equal(t, "100", q.Get("limit"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "t.rowid", q.Get("sortfield"))
	assert.Equal(t, "ASC", q.Get("sortorder"))
	assert.Equal(t, "(t.fk_statut:>:'0')", q.Get("sqlfilters"))
}

func TestNotFoundMeansEmpty(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	records, err := c.FetchPage(context.Background(), "invoices", 0, 100)
	require.NoError(t, err)
	assert.Empty(t, records)

	payments, err := c.InvoicePayments(context.Background(), "invoices", 99)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestServerErrorRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[]`)
	})

	_, err := c.FetchPage(context.Background(), "invoices", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestClientErrorDoesNotRetry(t *testing.T) {
	attempts := 0
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad key", http.StatusForbidden)
	})

	_, err := c.FetchPage(context.Background(), "invoices", 0, 100)
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		n := defaultPageSize
		if page == 1 {
			n = 3 // short page ends the scan
		}
		records := make([]json.RawMessage, n)
		for i := range records {
			records[i] = json.RawMessage(fmt.Sprintf(`{"id":"%d"}`, page*defaultPageSize+i))
		}
		_ = json.NewEncoder(w).Encode(records)
	})

	var pages int
	records, err := c.FetchAll(context.Background(), "invoices", func(page, fetched int) { pages = page + 1 })
	require.NoError(t, err)
	assert.Len(t, records, defaultPageSize+3)
	assert.Equal(t, 2, pages)
}
