package execution

import (
	"fmt"

	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/exchange"
	"github.com/shopspring/decimal"
)

// Quantize rounds requested down to a multiple of the step size and clamps it up
// to the minimum quantity. A zero step size leaves the quantity unrounded.
func Quantize(requested decimal.Decimal, lot exchange.LotSize) (decimal.Decimal, error) {
	q := requested
	if lot.StepSize.IsPositive() {
		q = requested.Div(lot.StepSize).Floor().Mul(lot.StepSize)
	}
	if q.LessThan(lot.MinQuantity) {
		q = lot.MinQuantity
	}
	if !q.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s (min %s, step %s)", domain.ErrQuantityTooSmall, requested, lot.MinQuantity, lot.StepSize)
	}
	return q, nil
}
