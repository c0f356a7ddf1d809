// Package pricing computes the derived fields of a sale. The data model has
// no cost column, so profit is estimated with a flat margin rate applied to
// the sale total. Category discounts are display metadata and do not enter
// this computation.
package pricing

import "github.com/shopspring/decimal"

// MarginRate is the flat profit estimate applied to every sale total.
var MarginRate = decimal.New(30, -2) // 0.30

// ComputeSaleValues derives total_price and profit from the product's unit
// price and the sold quantity. Both manual entry and CSV import go through
// here so the two paths cannot drift apart.
func ComputeSaleValues(price decimal.Decimal, quantity int) (totalPrice, profit decimal.Decimal) {
	totalPrice = price.Mul(decimal.NewFromInt(int64(quantity)))
	profit = totalPrice.Mul(MarginRate)
	return totalPrice, profit
}
