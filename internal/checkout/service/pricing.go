package service

import (
	"math"

	orderdomain "github.com/fjod/print_shop/internal/order/domain"
)

// TaxShippingStrategy computes tax and shipping from the order subtotal and
// the destination address. Amounts are minor currency units.
type TaxShippingStrategy interface {
	Totals(subtotal int64, shipTo orderdomain.Address) (taxAmount, shippingAmount int64)
}

// FlatRate applies a fixed tax rate and a flat shipping charge regardless
// of destination.
type FlatRate struct {
	TaxRate       float64
	ShippingCents int64
}

func (f FlatRate) Totals(subtotal int64, _ orderdomain.Address) (int64, int64) {
	tax := int64(math.Round(float64(subtotal) * f.TaxRate))
	return tax, f.ShippingCents
}
