package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"photobox/internal/models"
	"photobox/internal/revenue"
	"photobox/internal/validation"
	"photobox/internal/xendit"
)

type transactionQuery struct {
	Status string
	From   time.Time
	To     time.Time
}

func parseTransactionQuery(r *http.Request) (transactionQuery, error) {
	q := r.URL.Query()
	out := transactionQuery{Status: strings.ToUpper(strings.TrimSpace(q.Get("status")))}
	switch out.Status {
	case "", models.InvoicePaid, models.InvoiceExpired, models.InvoiceFailed, models.InvoicePending:
	default:
		return transactionQuery{}, validation.Field("status", "oneof=PAID EXPIRED FAILED PENDING")
	}
	for _, bound := range []struct {
		name   string
		target *time.Time
	}{{"from", &out.From}, {"to", &out.To}} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		day, err := revenue.ParseDay(raw)
		if err != nil {
			return transactionQuery{}, validation.Field(bound.name, "datetime=2006-01-02")
		}
		*bound.target = day
	}
	if !out.From.IsZero() && !out.To.IsZero() && out.To.Before(out.From) {
		return transactionQuery{}, validation.Field("to", "gtefield=from")
	}
	return out, nil
}

// transactions fetches the owner's invoices with the status filter pushed to
// the gateway and the date range applied locally, since the range is
// evaluated on paid_at.
func (d *Dashboard) transactions(r *http.Request, ownerID string, q transactionQuery) ([]models.Invoice, error) {
	invoices, err := d.Revenue.ListInvoices(r.Context(), ownerID, xendit.Filter{Status: q.Status})
	if err != nil {
		return nil, err
	}
	invoices = revenue.FilterByStatus(invoices, q.Status)
	return revenue.FilterByDateRange(invoices, q.From, q.To), nil
}

func (d *Dashboard) handleRevenue(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	summary, err := d.Revenue.SumRevenue(r.Context(), p.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (d *Dashboard) handleRevenueDaily(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	q, err := parseTransactionQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	q.Status = models.InvoicePaid
	invoices, err := d.transactions(r, p.UserID, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"days":    revenue.Daily(invoices),
		"summary": revenue.Summarize(invoices),
	})
}

func (d *Dashboard) handleTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	q, err := parseTransactionQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	invoices, err := d.transactions(r, p.UserID, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": invoices, "total": len(invoices)})
}

func (d *Dashboard) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	d.writeReport(w, r, "csv", "text/csv; charset=utf-8")
}

func (d *Dashboard) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	d.writeReport(w, r, "pdf", "application/pdf")
}

// writeReport renders into a buffer first so a failure can still produce an
// error envelope.
func (d *Dashboard) writeReport(w http.ResponseWriter, r *http.Request, format, contentType string) {
	p, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	q, err := parseTransactionQuery(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	invoices, err := d.transactions(r, p.UserID, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	switch format {
	case "pdf":
		err = revenue.WritePDF(&buf, revenue.ReportMeta{Title: "Transactions", From: q.From, To: q.To}, invoices)
	default:
		err = revenue.WriteCSV(&buf, invoices)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	filename := fmt.Sprintf("transactions-%s.%s", time.Now().In(revenue.Jakarta).Format("20060102"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
