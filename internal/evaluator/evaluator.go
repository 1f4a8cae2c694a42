// Package evaluator decides whether a price target is met.
package evaluator

import (
	"stock-tracker-alerts/internal/types"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the outcome of comparing a target with the current price.
type Result struct {
	Triggered         bool            `json:"triggered"`
	Difference        decimal.Decimal `json:"difference"`
	DifferencePercent decimal.Decimal `json:"difference_percent"`
}

// Evaluate compares current against the target threshold.
//
// Buy and DCA fire at or below the target price, Sell and Trim at or above it.
// The trim percentage never takes part in the decision.
func Evaluate(target types.Target, current decimal.Decimal) Result {
	diff := current.Sub(target.Price)

	pct := decimal.Zero
	if !target.Price.IsZero() {
		pct = diff.Div(target.Price).Mul(hundred).Round(4)
	}

	var triggered bool
	switch {
	case target.Type.Below():
		triggered = current.LessThanOrEqual(target.Price)
	case target.Type.Above():
		triggered = current.GreaterThanOrEqual(target.Price)
	}

	return Result{
		Triggered:         triggered,
		Difference:        diff,
		DifferencePercent: pct,
	}
}
