// Package xendit reads invoices from the Xendit payment gateway.
package xendit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"photobox/internal/logging"
	"photobox/internal/metrics"
	"photobox/internal/models"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultBaseURL  = "https://api.xendit.co"
	defaultPageSize = 100
	maxPages        = 500
	breakerName     = "xendit"
)

type ExternalServiceError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xendit: %v", e.Err)
	}
	return fmt.Sprintf("xendit: status %d: %s", e.StatusCode, e.Body)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

type Filter struct {
	Status        string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

type Config struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
}

type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]models.Invoice]
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  gobreaker.NewCircuitBreaker[[]models.Invoice](breakerSettings()),
	}
}

func breakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejected key or bad filter belongs to one owner and says nothing about the gateway.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ext *ExternalServiceError
			if errors.As(err, &ext) && ext.StatusCode > 0 && ext.StatusCode < 500 {
				return true
			}
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ListInvoices follows the last_invoice_id cursor until a short page and
// returns every matching invoice. filter.Limit caps the total when set.
func (c *Client) ListInvoices(ctx context.Context, apiKey string, filter Filter) ([]models.Invoice, error) {
	var all []models.Invoice
	after := ""
	for page := 0; page < maxPages; page++ {
		size := c.pageSize
		if filter.Limit > 0 && filter.Limit-len(all) < size {
			size = filter.Limit - len(all)
		}
		batch, err := c.breaker.Execute(func() ([]models.Invoice, error) {
			return c.fetchPage(ctx, apiKey, filter, after, size)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, &ExternalServiceError{StatusCode: http.StatusServiceUnavailable, Err: err}
			}
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < size || (filter.Limit > 0 && len(all) >= filter.Limit) {
			return all, nil
		}
		after = batch[len(batch)-1].ID
	}
	logging.Warn().Int("pages", maxPages).Msg("xendit invoice listing stopped at page limit")
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, apiKey string, filter Filter, after string, size int) ([]models.Invoice, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(size))
	if filter.Status != "" {
		query.Set("statuses", `["`+strings.ToUpper(filter.Status)+`"]`)
	}
	if !filter.CreatedAfter.IsZero() {
		query.Set("created_after", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if !filter.CreatedBefore.IsZero() {
		query.Set("created_before", filter.CreatedBefore.UTC().Format(time.RFC3339))
	}
	if after != "" {
		query.Set("last_invoice_id", after)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/invoices?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(apiKey, "")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ExternalServiceError{Err: err}
	}
	defer resp.Body.Close()
	metrics.RecordGatewayRequest(resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &ExternalServiceError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExternalServiceError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}
	var invoices []models.Invoice
	if err := json.Unmarshal(body, &invoices); err != nil {
		return nil, &ExternalServiceError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode invoices: %w", err)}
	}
	return invoices, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
