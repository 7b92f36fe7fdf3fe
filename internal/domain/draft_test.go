package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal %q: %v", s, err)
	}
	return v
}

func TestRecalculateTotalsExampleCart(t *testing.T) {
	fixedTax := dec(t, "24.9")
	rules := PricingRules{FixedTax: &fixedTax, ShippingFee: dec(t, "5")}
	draft := OrderDraft{
		LineItems: []LineItem{
			{ProductDetailID: "a", UnitPrice: dec(t, "10.00"), Quantity: 2},
			{ProductDetailID: "b", UnitPrice: dec(t, "5.00"), Quantity: 1},
		},
	}

	rules.Apply(&draft)

	if !draft.Subtotal.Equal(dec(t, "25.00")) {
		t.Fatalf("expected subtotal 25.00, got %s", draft.Subtotal)
	}
	if !draft.Total.Equal(dec(t, "54.90")) {
		t.Fatalf("expected total 54.90, got %s", draft.Total)
	}
}

func TestRecalculateKeepsTotalAfterMutation(t *testing.T) {
	rules := PricingRules{TaxRate: dec(t, "0.1"), ShippingFee: dec(t, "5"), Discount: dec(t, "2")}
	draft := OrderDraft{
		LineItems: []LineItem{
			{ProductDetailID: "a", UnitPrice: dec(t, "19.99"), Quantity: 3},
			{ProductDetailID: "b", UnitPrice: dec(t, "7.50"), Quantity: 2},
		},
	}
	rules.Apply(&draft)
	assertTotalBalances(t, draft)
	if !draft.Tax.Equal(dec(t, "7.50")) {
		t.Fatalf("expected tax 7.50, got %s", draft.Tax)
	}

	if !draft.RemoveLine("a") {
		t.Fatalf("expected line a to be removed")
	}
	rules.Apply(&draft)
	assertTotalBalances(t, draft)
	if !draft.Subtotal.Equal(dec(t, "15.00")) {
		t.Fatalf("expected subtotal 15.00 after removal, got %s", draft.Subtotal)
	}

	draft.ShippingFee = dec(t, "12.25")
	draft.Recalculate()
	assertTotalBalances(t, draft)
}

func TestApplyEmptyDraftHasNoFees(t *testing.T) {
	rules := PricingRules{TaxRate: dec(t, "0.1"), ShippingFee: dec(t, "5")}
	var draft OrderDraft
	rules.Apply(&draft)
	if !draft.Total.IsZero() {
		t.Fatalf("expected zero total for empty draft, got %s", draft.Total)
	}
}

func TestRecalculateCapsDiscount(t *testing.T) {
	draft := OrderDraft{
		LineItems: []LineItem{{ProductDetailID: "a", UnitPrice: dec(t, "3"), Quantity: 1}},
		Discount:  dec(t, "10"),
	}
	draft.Recalculate()
	if draft.Total.IsNegative() {
		t.Fatalf("total must not be negative, got %s", draft.Total)
	}
	assertTotalBalances(t, draft)
}

func TestDraftJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, 2, 21, 10, 30, 0, 0, time.UTC)
	draft := OrderDraft{
		ID:       "01HZX",
		Owner:    "user-1",
		Currency: "usd",
		LineItems: []LineItem{
			{ProductDetailID: "pd-1", Name: "Linen shirt", UnitPrice: dec(t, "10.00"), Quantity: 2, Color: "white", Size: "M", ImageRefs: []string{"a.jpg", "b.jpg"}},
		},
		ShippingFee:    dec(t, "5"),
		Tax:            dec(t, "2.5"),
		Contact:        &Contact{Email: "a@example.com", Phone: "+15551234567", FirstName: "Ada"},
		Shipping:       &ShippingAddress{FirstName: "Ada", LastName: "L", Address: "1 Main", City: "Town", PostalCode: "12345", Country: "US"},
		PaymentType:    PaymentTypeCardOnline,
		ActiveStep:     StepPayment,
		CompletedSteps: []CheckoutStep{StepContact, StepShipping},
		StatusHistory:  []OrderStatusEntry{{Date: created, Status: OrderStatusDraft}},
		CreatedAt:      created,
		UpdatedAt:      created.Add(time.Minute),
	}
	draft.Recalculate()

	first, err := json.Marshal(draft)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded OrderDraft
	if err := json.Unmarshal(first, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	second, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("marshal decoded: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("round trip mismatch:\n%s\n%s", first, second)
	}
	if !decoded.Total.Equal(draft.Total) || decoded.Contact.Email != draft.Contact.Email || !decoded.CreatedAt.Equal(created) {
		t.Fatalf("decoded draft differs: %#v", decoded)
	}
}

func TestBuildOrderCarriesTransaction(t *testing.T) {
	now := time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC)
	txID := "pi_123"
	draft := OrderDraft{
		LineItems:     []LineItem{{ProductDetailID: "pd-1", Name: "Shirt", UnitPrice: dec(t, "10"), Quantity: 1}},
		Contact:       &Contact{Email: "a@example.com", Phone: "123"},
		Shipping:      &ShippingAddress{FirstName: "Ada", LastName: "Lovelace", Address: "1 Main", City: "Town", State: "CA", PostalCode: "1", Country: "US"},
		PaymentType:   PaymentTypeCardOnline,
		StatusHistory: []OrderStatusEntry{{Date: now.Add(-time.Hour), Status: OrderStatusDraft}},
	}
	draft.Recalculate()

	order := draft.BuildOrder(TransactionReference{TransactionID: &txID, Amount: draft.Total}, []OrderStatusEntry{{Date: now, Status: OrderStatusPaid}}, now)

	if order.TransactionID == nil || *order.TransactionID != txID {
		t.Fatalf("expected transaction id %q, got %v", txID, order.TransactionID)
	}
	if order.UserInfo.FullName != "Ada Lovelace" || order.UserInfo.Province != "CA" || order.UserInfo.Phone != "123" {
		t.Fatalf("unexpected user info %#v", order.UserInfo)
	}
	if len(order.OrderDetail) != 1 || !order.OrderDetail[0].PresentUnitPrice.Equal(dec(t, "10")) {
		t.Fatalf("unexpected order lines %#v", order.OrderDetail)
	}
	if len(order.OrderStatusHistory) != 2 ||
		order.OrderStatusHistory[0].Status != OrderStatusDraft ||
		order.OrderStatusHistory[1].Status != OrderStatusPaid || !order.OrderStatusHistory[1].Date.Equal(now) {
		t.Fatalf("unexpected history %#v", order.OrderStatusHistory)
	}

	order.OrderStatusHistory[0].Status = "mutated"
	if draft.StatusHistory[0].Status != OrderStatusDraft {
		t.Fatalf("order history aliases the draft")
	}
}

func TestCheckoutStepOrdering(t *testing.T) {
	if StepContact.Next() != StepShipping || StepShipping.Next() != StepPayment || StepPayment.Next() != StepPayment {
		t.Fatalf("unexpected step progression")
	}
	if CheckoutStep("bogus").Index() != -1 {
		t.Fatalf("unknown step should have index -1")
	}
}

func assertTotalBalances(t *testing.T, d OrderDraft) {
	t.Helper()
	want := d.Subtotal.Add(d.ShippingFee).Add(d.Tax).Sub(d.Discount)
	if !d.Total.Equal(want) {
		t.Fatalf("total %s != subtotal %s + shipping %s + tax %s - discount %s", d.Total, d.Subtotal, d.ShippingFee, d.Tax, d.Discount)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	original := OrderDraft{
		LineItems:      []LineItem{{ProductDetailID: "pd-1", Quantity: 1, ImageRefs: []string{"a.jpg"}}},
		Contact:        &Contact{Email: "a@example.com"},
		CompletedSteps: []CheckoutStep{StepContact},
	}
	clone := original.Clone()
	clone.LineItems[0].Quantity = 5
	clone.LineItems[0].ImageRefs[0] = "b.jpg"
	clone.Contact.Email = "b@example.com"
	clone.CompletedSteps[0] = StepPayment

	if original.LineItems[0].Quantity != 1 || original.LineItems[0].ImageRefs[0] != "a.jpg" {
		t.Fatalf("line items aliased: %+v", original.LineItems[0])
	}
	if original.Contact.Email != "a@example.com" || original.CompletedSteps[0] != StepContact {
		t.Fatalf("draft aliased: %+v", original)
	}
}
