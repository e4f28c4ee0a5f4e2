// Package revenue aggregates gateway invoices for a booth owner.
package revenue

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/models"
	"photobox/internal/store"
	"photobox/internal/xendit"
)

var ErrConfigurationMissing = errors.New("xendit api key is not configured")

const defaultCurrency = "IDR"

// Jakarta is the calendar the date filters count days in.
var Jakarta = loadJakarta()

func loadJakarta() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

type InvoiceLister interface {
	ListInvoices(ctx context.Context, apiKey string, filter xendit.Filter) ([]models.Invoice, error)
}

type Service struct {
	store   store.Store
	invoice InvoiceLister
}

func NewService(st store.Store, invoices InvoiceLister) *Service {
	return &Service{store: st, invoice: invoices}
}

// APIKey reads the owner's gateway key. Both the snake and camel case field
// names are accepted.
func (s *Service) APIKey(ctx context.Context, ownerID string) (string, error) {
	path, err := docpath.Resolve(ownerID, "", "", "")
	if err != nil {
		return "", err
	}
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrConfigurationMissing
		}
		return "", err
	}
	for _, field := range []string{"xendit_api_key", "xenditApiKey"} {
		if key, ok := doc.Data[field].(string); ok && strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), nil
		}
	}
	return "", ErrConfigurationMissing
}

func (s *Service) ListInvoices(ctx context.Context, ownerID string, filter xendit.Filter) ([]models.Invoice, error) {
	key, err := s.APIKey(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.invoice.ListInvoices(ctx, key, filter)
}

func (s *Service) SumRevenue(ctx context.Context, ownerID string) (models.Revenue, error) {
	invoices, err := s.ListInvoices(ctx, ownerID, xendit.Filter{Status: models.InvoicePaid})
	if err != nil {
		return models.Revenue{}, err
	}
	return Summarize(invoices), nil
}

// Summarize totals the paid invoices.
func Summarize(invoices []models.Invoice) models.Revenue {
	out := models.Revenue{Total: Sum(invoices), Currency: defaultCurrency}
	for _, inv := range invoices {
		if inv.Status != models.InvoicePaid {
			continue
		}
		out.PaidCount++
		if inv.Currency != "" {
			out.Currency = inv.Currency
		}
	}
	return out
}

// Sum adds PAID amounts in integer hundredths, so the result does not depend on order.
func Sum(invoices []models.Invoice) float64 {
	var minor int64
	for _, inv := range invoices {
		if inv.Status == models.InvoicePaid {
			minor += toMinor(inv.Amount)
		}
	}
	return float64(minor) / 100
}

func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func FilterByStatus(invoices []models.Invoice, status string) []models.Invoice {
	if status == "" {
		return invoices
	}
	status = strings.ToUpper(status)
	out := make([]models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.Status == status {
			out = append(out, inv)
		}
	}
	return out
}

// FilterByDateRange keeps invoices settled on a Jakarta calendar day between
// from and to, both days included. A zero bound is open.
func FilterByDateRange(invoices []models.Invoice, from, to time.Time) []models.Invoice {
	var lo, hi time.Time
	if !from.IsZero() {
		lo = StartOfDay(from)
	}
	if !to.IsZero() {
		hi = StartOfDay(to).AddDate(0, 0, 1)
	}
	out := make([]models.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		at := inv.SettledAt()
		if !lo.IsZero() && at.Before(lo) {
			continue
		}
		if !hi.IsZero() && !at.Before(hi) {
			continue
		}
		out = append(out, inv)
	}
	return out
}

func StartOfDay(t time.Time) time.Time {
	local := t.In(Jakarta)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Jakarta)
}

// ParseDay reads a YYYY-MM-DD day in Jakarta time.
func ParseDay(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, raw, Jakarta)
}

type DailyTotal struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Daily groups paid invoices by Jakarta calendar day, oldest first.
func Daily(invoices []models.Invoice) []DailyTotal {
	minor := map[string]int64{}
	counts := map[string]int{}
	for _, inv := range invoices {
		if inv.Status != models.InvoicePaid {
			continue
		}
		day := inv.SettledAt().In(Jakarta).Format(time.DateOnly)
		minor[day] += toMinor(inv.Amount)
		counts[day]++
	}
	out := make([]DailyTotal, 0, len(minor))
	for day, total := range minor {
		out = append(out, DailyTotal{Date: day, Total: float64(total) / 100, Count: counts[day]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
