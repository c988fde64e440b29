package emissions

import "github.com/shopspring/decimal"

// Compute returns activity * factor exactly.
func Compute(activity, factor decimal.Decimal) decimal.Decimal {
	return activity.Mul(factor)
}
