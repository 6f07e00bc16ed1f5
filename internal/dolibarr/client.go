package dolibarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// validatedFilter restricts list endpoints to records with a validated
// status or better; drafts are never synced.
const validatedFilter = "(t.fk_statut:>:'0')"

const defaultPageSize = 100

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("dolibarr base url is empty")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("dolibarr api key is empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError is a non-2xx, non-404 response from the API; it aborts the
// run that hit it.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dolibarr api error %d: %s", e.Code, e.Body)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	target := c.cfg.BaseURL + "/" + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// 1s, 2s, 4s between attempts.
			delay := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.doOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			// 4xx other than 429 will not get better on retry.
			if statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != http.StatusTooManyRequests {
				return nil, err
			}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("DOLAPIKEY", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	// Dolibarr answers 404 for some empty-result queries; callers treat
	// that as an empty page, not a failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: msg}
	}
	return body, nil
}

var errNotFound = errors.New("dolibarr: not found")

// FetchPage returns one page of raw records for a list resource, filtered to
// validated records and sorted by rowid ascending so pagination is
// deterministic.
func (c *Client) FetchPage(ctx context.Context, resource string, page, limit int) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("page", strconv.Itoa(page))
	params.Set("sortfield", "t.rowid")
	params.Set("sortorder", "ASC")
	params.Set("sqlfilters", validatedFilter)

	body, err := c.get(ctx, resource, params)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		// A non-array body (e.g. an error object with a 200) ends the scan.
		return nil, nil
	}
	return records, nil
}

// FetchAll pages through a list resource until a short page. Progress is
// reported through onPage, if set.
func (c *Client) FetchAll(ctx context.Context, resource string, onPage func(page, fetched int)) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 0; ; page++ {
		batch, err := c.FetchPage(ctx, resource, page, defaultPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", resource, page, err)
		}
		all = append(all, batch...)
		if onPage != nil {
			onPage(page, len(all))
		}
		if len(batch) < defaultPageSize {
			return all, nil
		}
	}
}

// InvoicePayments lists payments settling one invoice. resource is the
// parent list resource ("invoices" or "supplierinvoices").
func (c *Client) InvoicePayments(ctx context.Context, resource string, invoiceID int64) ([]Payment, error) {
	body, err := c.get(ctx, fmt.Sprintf("%s/%d/payments", resource, invoiceID), nil)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var payments []Payment
	if err := json.Unmarshal(body, &payments); err != nil {
		return nil, fmt.Errorf("decode payments for invoice %d: %w", invoiceID, err)
	}
	return payments, nil
}

func (c *Client) BankAccounts(ctx context.Context) ([]BankAccount, error) {
	body, err := c.get(ctx, "bankaccounts", nil)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var accounts []BankAccount
	if err := json.Unmarshal(body, &accounts); err != nil {
		return nil, fmt.Errorf("decode bank accounts: %w", err)
	}
	return accounts, nil
}
