package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingRules decide the fees applied on top of the draft subtotal.
type PricingRules struct {
	// TaxRate is applied to the subtotal when FixedTax is nil.
	TaxRate     decimal.Decimal
	FixedTax    *decimal.Decimal
	ShippingFee decimal.Decimal
	Discount    decimal.Decimal
}

// Apply sets the fee fields of the draft and recalculates totals. Drafts without
// line items carry no fees.
func (r PricingRules) Apply(d *OrderDraft) {
	if d == nil {
		return
	}
	d.Subtotal = subtotalOf(d.LineItems)
	if len(d.LineItems) == 0 {
		d.ShippingFee = decimal.Zero
		d.Tax = decimal.Zero
		d.Discount = decimal.Zero
		d.Recalculate()
		return
	}
	d.ShippingFee = nonNegative(r.ShippingFee)
	if r.FixedTax != nil {
		d.Tax = nonNegative(*r.FixedTax)
	} else {
		d.Tax = nonNegative(d.Subtotal.Mul(r.TaxRate).Round(2))
	}
	d.Discount = nonNegative(r.Discount)
	d.Recalculate()
}

// Recalculate recomputes the subtotal and total from line items and fees.
// The discount is capped so the total never drops below zero.
func (d *OrderDraft) Recalculate() {
	if d == nil {
		return
	}
	d.Subtotal = subtotalOf(d.LineItems)
	gross := d.Subtotal.Add(d.ShippingFee).Add(d.Tax)
	if d.Discount.GreaterThan(gross) {
		d.Discount = gross
	}
	d.Total = gross.Sub(d.Discount)
}

// RemoveLine drops every line for the product detail id. It reports whether a line was removed.
func (d *OrderDraft) RemoveLine(productDetailID string) bool {
	if d == nil {
		return false
	}
	kept := d.LineItems[:0]
	removed := false
	for _, item := range d.LineItems {
		if item.ProductDetailID == productDetailID {
			removed = true
			continue
		}
		kept = append(kept, item)
	}
	d.LineItems = kept
	return removed
}

// HasCompleted reports whether the step has been submitted at least once.
func (d *OrderDraft) HasCompleted(step CheckoutStep) bool {
	if d == nil {
		return false
	}
	for _, s := range d.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// MarkCompleted records the step as submitted.
func (d *OrderDraft) MarkCompleted(step CheckoutStep) {
	if d.HasCompleted(step) {
		return
	}
	d.CompletedSteps = append(d.CompletedSteps, step)
}

// BuildOrder combines the draft with the transaction reference into the backend order record.
// The draft's own status history comes first, followed by the entries passed in.
func (d OrderDraft) BuildOrder(ref TransactionReference, entries []OrderStatusEntry, now time.Time) Order {
	history := make([]OrderStatusEntry, 0, len(d.StatusHistory)+len(entries))
	history = append(history, d.StatusHistory...)
	history = append(history, entries...)

	lines := make([]OrderLine, 0, len(d.LineItems))
	for _, item := range d.LineItems {
		lines = append(lines, OrderLine{
			ProductDetailID:  item.ProductDetailID,
			ProductName:      item.Name,
			Quantity:         item.Quantity,
			PresentUnitPrice: item.UnitPrice,
			Color:            item.Color,
			Size:             item.Size,
			ImageURLs:        append([]string(nil), item.ImageRefs...),
		})
	}

	var info UserInfo
	if d.Shipping != nil {
		info = UserInfo{
			FullName:   d.Shipping.FullName(),
			Address:    d.Shipping.Address,
			PostalCode: d.Shipping.PostalCode,
			City:       d.Shipping.City,
			Country:    d.Shipping.Country,
			Province:   d.Shipping.State,
			Apt:        d.Shipping.AptSuite,
		}
	}
	if d.Contact != nil {
		info.Phone = d.Contact.Phone
		info.Email = d.Contact.Email
		if info.FullName == "" {
			info.FullName = ShippingAddress{FirstName: d.Contact.FirstName, LastName: d.Contact.LastName}.FullName()
		}
	}

	return Order{
		OrderDetail:        lines,
		OrderStatusHistory: history,
		UserInfo:           info,
		Date:               now,
		PaymentMethod:      d.PaymentType,
		Status:             OrderStatusNew,
		ShippingFee:        d.ShippingFee,
		Tax:                d.Tax,
		Discount:           d.Discount,
		Total:              d.Total,
		Currency:           d.Currency,
		TransactionID:      ref.TransactionID,
	}
}

func subtotalOf(items []LineItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	return subtotal
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Clone returns a deep copy so stored drafts are not aliased by callers.
func (d OrderDraft) Clone() OrderDraft {
	out := d
	if d.LineItems != nil {
		out.LineItems = make([]LineItem, len(d.LineItems))
		for i, item := range d.LineItems {
			item.ImageRefs = append([]string(nil), item.ImageRefs...)
			out.LineItems[i] = item
		}
	}
	out.CompletedSteps = append([]CheckoutStep(nil), d.CompletedSteps...)
	out.StatusHistory = append([]OrderStatusEntry(nil), d.StatusHistory...)
	if d.Contact != nil {
		c := *d.Contact
		out.Contact = &c
	}
	if d.Shipping != nil {
		s := *d.Shipping
		out.Shipping = &s
	}
	return out
}
