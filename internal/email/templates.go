package email

import (
	"bytes"
	"html/template"

	"github.com/shopspring/decimal"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
}

func (i OrderItem) DisplayName() string {
	if i.Name == "" {
		return i.ProductID
	}
	return i.Name
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderConfirmation struct {
	OrderID         string
	ShippingAddress string
	Items           []OrderItem
	Total           decimal.Decimal
}

type StatusUpdate struct {
	OrderID string
	Status  string
}

var funcs = template.FuncMap{
	"money": func(d decimal.Decimal) string { return "$" + d.StringFixed(2) },
}

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(funcs).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 24px;">Thank you for your order</h1>
	<p>Order number: <strong style="font-family: monospace;">{{.OrderID}}</strong></p>
	{{if .ShippingAddress}}<p>Shipping to: {{.ShippingAddress}}</p>{{end}}
	<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background: #f8f9fa;">
				<th style="padding: 12px; text-align: left;">Product</th>
				<th style="padding: 12px; text-align: center;">Qty</th>
				<th style="padding: 12px; text-align: right;">Price</th>
				<th style="padding: 12px; text-align: right;">Subtotal</th>
			</tr>
		</thead>
		<tbody>
		{{range .Items}}
			<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.DisplayName}}</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .Price}}</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .Subtotal}}</td>
			</tr>
		{{end}}
		</tbody>
	</table>
	<p style="text-align: right; font-size: 20px;">Total: <strong>{{money .Total}}</strong></p>
	<p style="font-size: 12px; color: #999;">This is an automated message.</p>
</body>
</html>`))

var statusTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 24px;">Your order has been updated</h1>
	<p>Order <strong style="font-family: monospace;">{{.OrderID}}</strong> is now <strong>{{.Status}}</strong>.</p>
	<p style="font-size: 12px; color: #999;">This is an automated message.</p>
</body>
</html>`))

// BuildOrderConfirmationBody renders the HTML body of the confirmation mail.
func BuildOrderConfirmationBody(c OrderConfirmation) (string, error) {
	var buf bytes.Buffer
	if err := confirmationTmpl.Execute(&buf, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func BuildStatusUpdateBody(u StatusUpdate) (string, error) {
	var buf bytes.Buffer
	if err := statusTmpl.Execute(&buf, u); err != nil {
		return "", err
	}
	return buf.String(), nil
}
