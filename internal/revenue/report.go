package revenue

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"photobox/internal/models"

	"github.com/phpdave11/gofpdf"
)

var reportHeader = []string{"invoice_id", "external_id", "status", "amount", "currency", "payer_email", "created", "paid_at"}

func WriteCSV(w io.Writer, invoices []models.Invoice) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(reportHeader); err != nil {
		return err
	}
	for _, inv := range invoices {
		if err := writer.Write([]string{
			inv.ID,
			inv.ExternalID,
			inv.Status,
			strconv.FormatFloat(inv.Amount, 'f', 2, 64),
			inv.Currency,
			inv.PayerEmail,
			formatTime(inv.Created),
			formatTimePtr(inv.PaidAt),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

type ReportMeta struct {
	Title string
	From  time.Time
	To    time.Time
}

func WritePDF(w io.Writer, meta ReportMeta, invoices []models.Invoice) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(meta.Title, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, meta.Title)
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 8, "Period: "+periodLabel(meta.From, meta.To))
	pdf.Ln(6)
	summary := Summarize(invoices)
	pdf.Cell(0, 8, fmt.Sprintf("Paid invoices: %d   Total: %s %s", summary.PaidCount, summary.Currency, formatAmount(summary.Total)))
	pdf.Ln(10)

	widths := []float64{55, 55, 25, 35, 20, 50, 37}
	headers := []string{"Invoice", "External ID", "Status", "Amount", "Cur.", "Payer", "Paid at"}
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, inv := range invoices {
		cells := []string{
			inv.ID,
			inv.ExternalID,
			inv.Status,
			formatAmount(inv.Amount),
			inv.Currency,
			inv.PayerEmail,
			displayTime(inv.SettledAt()),
		}
		for i, c := range cells {
			align := "L"
			if i == 3 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, clip(c, widths[i]), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf.Output(w)
}

func periodLabel(from, to time.Time) string {
	switch {
	case from.IsZero() && to.IsZero():
		return "all time"
	case from.IsZero():
		return "until " + to.In(Jakarta).Format(time.DateOnly)
	case to.IsZero():
		return "from " + from.In(Jakarta).Format(time.DateOnly)
	}
	return from.In(Jakarta).Format(time.DateOnly) + " - " + to.In(Jakarta).Format(time.DateOnly)
}

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func displayTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.In(Jakarta).Format("02 Jan 2006 15:04")
}

// clip keeps a cell on one line; roughly 2mm per character at 8pt.
func clip(s string, width float64) string {
	max := int(width / 2)
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
