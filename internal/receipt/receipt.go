// Package receipt renders printable plain-text receipts and invoices for
// settled orders. Output is fixed-width text sized for 32-column thermal
// printers; the outlet controls the header and footer lines.
package receipt

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/teranga-pos/api/internal/database"
)

const width = 32

// Data is everything one receipt needs.
type Data struct {
	OutletName string
	Header     string
	Footer     string
	Currency   string

	OrderNumber    string
	SettledAt      time.Time
	ServiceMode    string
	SettlementKind string

	Items []Line

	Subtotal       int64
	DiscountAmount int64
	ServiceCharge  int64
	TaxAmount      int64
	GrandTotal     int64

	Invoices []InvoiceLine
	Payments []PaymentLine

	// QRPayload is the machine-readable verification line printed under
	// the payments block, encoded by the printer as a QR code.
	QRPayload string
}

type Line struct {
	Name      string
	Quantity  int32
	UnitPrice int64
	LineTotal int64
}

type InvoiceLine struct {
	Number string
	Amount int64
}

type PaymentLine struct {
	Method         string
	Amount         int64
	AmountReceived int64
	ChangeAmount   int64
	Cash           bool
}

var funcs = template.FuncMap{
	"amount": func(v int64) string { return fmt.Sprintf("%d", v) },
	"row": func(left string, right int64) string {
		r := fmt.Sprintf("%d", right)
		pad := width - len(left) - len(r)
		if pad < 1 {
			pad = 1
		}
		return left + strings.Repeat(" ", pad) + r
	},
	"rule":   func() string { return strings.Repeat("-", width) },
	"center": center,
}

func center(s string) string {
	if len(s) >= width {
		return s
	}
	pad := (width - len(s)) / 2
	return strings.Repeat(" ", pad) + s
}

var receiptTmpl = template.Must(template.New("receipt").Funcs(funcs).Parse(`{{center .OutletName}}
{{- if .Header}}
{{center .Header}}
{{- end}}
{{rule}}
{{.OrderNumber}}  {{.SettledAt.Format "02/01/2006 15:04"}}
{{rule}}
{{- range .Items}}
{{.Name}}
{{row (printf "  %d x %d" .Quantity .UnitPrice) .LineTotal}}
{{- end}}
{{rule}}
{{row "Sous-total" .Subtotal}}
{{- if .DiscountAmount}}
{{row "Remise" .DiscountAmount}}
{{- end}}
{{- if .ServiceCharge}}
{{row "Service" .ServiceCharge}}
{{- end}}
{{- if .TaxAmount}}
{{row "TVA" .TaxAmount}}
{{- end}}
{{row (printf "TOTAL %s" .Currency) .GrandTotal}}
{{- if gt (len .Invoices) 1}}
{{rule}}
{{- range .Invoices}}
{{row .Number .Amount}}
{{- end}}
{{- end}}
{{rule}}
{{- range .Payments}}
{{row .Method .Amount}}
{{- if .Cash}}
{{row "  Recu" .AmountReceived}}
{{row "  Rendu" .ChangeAmount}}
{{- end}}
{{- end}}
{{- if .QRPayload}}
{{rule}}
{{.QRPayload}}
{{- end}}
{{- if .Footer}}
{{rule}}
{{center .Footer}}
{{- end}}
`))

// Render produces the printable receipt text.
func Render(d Data) (string, error) {
	var b strings.Builder
	if err := receiptTmpl.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}
	return b.String(), nil
}

// FromOrder assembles receipt data from the persisted settlement rows.
func FromOrder(outlet database.Outlet, order database.Order, items []database.OrderItem, invoices []database.Invoice, payments []database.Payment) Data {
	d := Data{
		OutletName:     outlet.Name,
		Currency:       outlet.Currency,
		OrderNumber:    order.OrderNumber,
		ServiceMode:    order.ServiceMode,
		SettlementKind: order.SettlementKind,
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		ServiceCharge:  order.ServiceCharge,
		TaxAmount:      order.TaxAmount,
		GrandTotal:     order.TotalAmount,
		QRPayload:      fmt.Sprintf("TPOS|%s|%s|%d", outlet.ID, order.OrderNumber, order.TotalAmount),
	}
	if outlet.ReceiptHeader.Valid {
		d.Header = outlet.ReceiptHeader.String
	}
	if outlet.ReceiptFooter.Valid {
		d.Footer = outlet.ReceiptFooter.String
	}
	if order.SettledAt.Valid {
		d.SettledAt = order.SettledAt.Time
	} else {
		d.SettledAt = order.CreatedAt
	}

	d.Items = make([]Line, len(items))
	for i, it := range items {
		d.Items[i] = Line{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice, LineTotal: it.LineTotal}
	}
	d.Invoices = make([]InvoiceLine, len(invoices))
	for i, inv := range invoices {
		d.Invoices[i] = InvoiceLine{Number: inv.InvoiceNumber, Amount: inv.Amount}
	}
	d.Payments = make([]PaymentLine, len(payments))
	for i, p := range payments {
		pl := PaymentLine{Method: p.Method, Amount: p.Amount}
		if p.AmountReceived.Valid {
			pl.Cash = true
			pl.AmountReceived = p.AmountReceived.Int64
			pl.ChangeAmount = p.ChangeAmount.Int64
		}
		d.Payments[i] = pl
	}
	return d
}
