package invoice

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatMoney renders an amount as $25,000.00.
func FormatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.Truncate(0)
	cents := d.Sub(whole).Shift(2).IntPart()
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(whole.IntPart()), cents)
}

// ReceiptFilename is the download name for an invoice's receipt.
func ReceiptFilename(inv Invoice) string {
	return "SolarSymphony_Invoice_" + inv.InvoiceNo + ".txt"
}

// RenderReceipt produces the plain-text receipt for inv.
func RenderReceipt(inv Invoice) string {
	var b strings.Builder
	b.WriteString("SOLAR SYMPHONY - INVOICE\n")
	b.WriteString("========================\n\n")
	fmt.Fprintf(&b, "Invoice No: %s\n", inv.InvoiceNo)
	fmt.Fprintf(&b, "Date: %s\n\n", inv.Date)

	b.WriteString("BILLING TO:\n")
	fmt.Fprintf(&b, "%s\n%s\n", inv.Customer.Name, inv.Customer.Address)
	fmt.Fprintf(&b, "Email: %s\n", inv.Customer.Email)
	fmt.Fprintf(&b, "Phone: %s\n", inv.Customer.Phone)
	if inv.Customer.TRN != "" {
		fmt.Fprintf(&b, "TRN: %s\n", inv.Customer.TRN)
	}

	b.WriteString("\nITEMS:\n------------------------\n")
	for _, it := range inv.Items {
		unit := it.UnitPrice()
		fmt.Fprintf(&b, "%s x%d @ %s = %s\n", it.Name, it.Quantity, FormatMoney(unit), FormatMoney(it.LineTotal()))
	}

	t := inv.Totals
	b.WriteString("\n")
	fmt.Fprintf(&b, "SUBTOTAL: %s\n", FormatMoney(t.SubTotal))
	fmt.Fprintf(&b, "SHIPPING: %s\n", FormatMoney(t.Shipping))
	fmt.Fprintf(&b, "DISCOUNT: -%s\n", FormatMoney(t.TotalDiscount))
	fmt.Fprintf(&b, "TAX: %s\n", FormatMoney(t.Taxes))
	fmt.Fprintf(&b, "TOTAL: %s\n\n", FormatMoney(t.Total))

	fmt.Fprintf(&b, "Payment Method: %s\n", inv.PaymentMethod)
	fmt.Fprintf(&b, "Shipping Method: %s\n", inv.ShippingMethod)
	if inv.AppliedPromoCode != nil && *inv.AppliedPromoCode != "" {
		fmt.Fprintf(&b, "Promo Code: %s\n", *inv.AppliedPromoCode)
	}
	b.WriteString("\nThank you for your business!\n")
	b.WriteString("Solar Symphony - Powering Your Future\n")
	return b.String()
}
