package order

import (
	"errors"
	"fmt"

	"merchantdispatch/internal/pkg/errs"

	"github.com/shopspring/decimal"
)

// Item is one order line. Items are values; the order copies them on every change.
type Item struct {
	BusinessID   string
	BusinessName string
	MenuID       string
	Name         string
	Image        string
	Quantity     int
	UnitPrice    decimal.Decimal
	// Available is false once the merchant marks the item out of stock.
	Available bool
	// Replacement is the substitute chosen in ModeReplace. Nil means none.
	Replacement *Item
}

// Validate checks the line invariants.
func (i Item) Validate() error {
	var errList []error
	if i.MenuID == "" && i.Name == "" {
		errList = append(errList, errs.NewValueIsRequiredError("item menu_id or name"))
	}
	if i.Quantity <= 0 {
		errList = append(errList, errs.NewValueIsInvalidErrorWithCause(
			"item quantity", fmt.Errorf("%d is not greater than 0", i.Quantity)))
	}
	if i.UnitPrice.IsNegative() {
		errList = append(errList, errs.NewValueIsInvalidErrorWithCause(
			"item price", fmt.Errorf("%s is negative", i.UnitPrice)))
	}
	return errors.Join(errList...)
}

// Subtotal is quantity times unit price.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i Item) clone() Item {
	c := i
	if i.Replacement != nil {
		r := i.Replacement.clone()
		c.Replacement = &r
	}
	return c
}

// Totals are the monetary figures sent back to the backend on confirmation.
type Totals struct {
	Subtotal            decimal.Decimal
	PlatformFee         decimal.Decimal
	Discount            decimal.Decimal
	DeliveryFee         decimal.Decimal
	MerchantDeliveryFee decimal.Decimal
	Total               decimal.Decimal
}

// RemovedItem is a changelist entry for an item dropped from the order.
type RemovedItem struct {
	BusinessID string `json:"business_id"`
	MenuID     string `json:"menu_id"`
	ItemName   string `json:"item_name"`
}

// ReplacementLine describes one side of a substitution.
type ReplacementLine struct {
	BusinessID   string          `json:"business_id"`
	BusinessName string          `json:"business_name"`
	MenuID       string          `json:"menu_id"`
	ItemName     string          `json:"item_name"`
	ItemImage    string          `json:"item_image"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

// ReplacedItem is a changelist entry for a substitution.
type ReplacedItem struct {
	Old ReplacementLine `json:"old"`
	New ReplacementLine `json:"new"`
}

// Changelist is the explicit record of unavailable items sent with CONFIRMED.
type Changelist struct {
	Removed  []RemovedItem  `json:"removed"`
	Replaced []ReplacedItem `json:"replaced"`
}

// IsEmpty reports whether nothing was removed or replaced.
func (c Changelist) IsEmpty() bool {
	return len(c.Removed) == 0 && len(c.Replaced) == 0
}

func lineOf(i Item) ReplacementLine {
	return ReplacementLine{
		BusinessID:   i.BusinessID,
		BusinessName: i.BusinessName,
		MenuID:       i.MenuID,
		ItemName:     i.Name,
		ItemImage:    i.Image,
		Quantity:     i.Quantity,
		Price:        i.UnitPrice,
		Subtotal:     i.Subtotal(),
	}
}

// resolveUnavailable applies mode to items and returns the surviving lines plus the changelist.
// In ModeReplace an unavailable item without a replacement is removed.
func resolveUnavailable(items []Item, mode UnavailableMode) ([]Item, Changelist) {
	kept := make([]Item, 0, len(items))
	changes := Changelist{Removed: []RemovedItem{}, Replaced: []ReplacedItem{}}

	for _, it := range items {
		if it.Available {
			kept = append(kept, it.clone())
			continue
		}
		if mode == ModeReplace && it.Replacement != nil {
			repl := it.Replacement.clone()
			repl.Available = true
			repl.Replacement = nil
			kept = append(kept, repl)
			changes.Replaced = append(changes.Replaced, ReplacedItem{Old: lineOf(it), New: lineOf(repl)})
			continue
		}
		changes.Removed = append(changes.Removed, RemovedItem{
			BusinessID: it.BusinessID,
			MenuID:     it.MenuID,
			ItemName:   it.Name,
		})
	}
	return kept, changes
}

func sumSubtotals(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// recomputeTotals derives the final figures for the surviving items.
//
//   - platform fee scales with the subtotal ratio
//   - discount is capped at the new subtotal
//   - delivery fees are unchanged
//   - total = subtotal + platform fee + delivery fee - discount
func recomputeTotals(prev Totals, originalSubtotal decimal.Decimal, kept []Item) Totals {
	newSubtotal := sumSubtotals(kept)

	platformFee := prev.PlatformFee
	if originalSubtotal.IsPositive() {
		platformFee = prev.PlatformFee.Mul(newSubtotal).Div(originalSubtotal).Round(2)
	}

	discount := decimal.Min(prev.Discount, newSubtotal)

	return Totals{
		Subtotal:            newSubtotal,
		PlatformFee:         platformFee,
		Discount:            discount,
		DeliveryFee:         prev.DeliveryFee,
		MerchantDeliveryFee: prev.MerchantDeliveryFee,
		Total:               newSubtotal.Add(platformFee).Add(prev.DeliveryFee).Sub(discount),
	}
}
