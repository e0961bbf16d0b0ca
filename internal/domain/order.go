package domain

import (
	"github.com/shopspring/decimal"
)

// PaymentStatusFor derives the payment status from total and amount paid.
func PaymentStatusFor(total, paid decimal.Decimal) PaymentStatus {
	balance := total.Sub(paid)
	switch {
	case !balance.IsPositive():
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// HasAtMostTwoDecimals reports whether d is representable in whole paise/cents.
func HasAtMostTwoDecimals(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

func (o Order) IsCancelled() bool { return o.Status == OrderStatusCancelled }

// Key returns the remote id when assigned, the local id otherwise.
func (o Order) Key() string {
	if o.ID != "" {
		return o.ID
	}
	return o.LocalID
}

// Quantities sums line item quantities per product.
func (o Order) Quantities() map[string]int64 {
	out := make(map[string]int64, len(o.Items))
	for _, it := range o.Items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

// ProductIDs returns each referenced product once, in line order.
func (o Order) ProductIDs() []string {
	seen := make(map[string]bool, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if seen[it.ProductID] {
			continue
		}
		seen[it.ProductID] = true
		ids = append(ids, it.ProductID)
	}
	return ids
}

func (o Order) WithoutImages() Order {
	cp := o
	cp.Items = make([]LineItem, len(o.Items))
	for i, it := range o.Items {
		it.ImageURL = ""
		cp.Items[i] = it
	}
	return cp
}

// LedgerDelta is the effect of creating o on its customer's running totals.
func (o Order) LedgerDelta() CustomerDelta {
	d := CustomerDelta{Spent: o.Total, Paid: o.AmountPaid, Due: o.BalanceDue}
	if !o.CreatedAt.IsZero() {
		at := o.CreatedAt
		d.OrderAt = &at
	}
	return d
}

// Neg reverses a ledger delta, leaving timestamps untouched.
func (d CustomerDelta) Neg() CustomerDelta {
	return CustomerDelta{Spent: d.Spent.Neg(), Paid: d.Paid.Neg(), Due: d.Due.Neg()}
}
