package evaluator

import (
	"testing"

	"stock-tracker-alerts/internal/types"

	"github.com/shopspring/decimal"
)

func target(tt types.TargetType, price string) types.Target {
	return types.Target{Type: tt, Price: decimal.RequireFromString(price)}
}

func TestEvaluate_Directions(t *testing.T) {
	tests := []struct {
		name    string
		tt      types.TargetType
		target  string
		current string
		want    bool
	}{
		{"buy below", types.TargetBuy, "150", "148.50", true},
		{"buy equal", types.TargetBuy, "150", "150.00", true},
		{"buy above", types.TargetBuy, "150", "150.01", false},
		{"dca below", types.TargetDCA, "80", "79", true},
		{"dca above", types.TargetDCA, "80", "81", false},
		{"sell above", types.TargetSell, "200", "201", true},
		{"sell equal", types.TargetSell, "200", "200", true},
		{"sell below", types.TargetSell, "200", "199.99", false},
		{"trim above", types.TargetTrim, "300", "310", true},
		{"trim below", types.TargetTrim, "300", "290", false},
		{"unknown type", types.TargetType("Hold"), "10", "10", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Evaluate(target(tc.tt, tc.target), decimal.RequireFromString(tc.current))
			if res.Triggered != tc.want {
				t.Errorf("Evaluate(%s %s @ %s).Triggered = %v, want %v", tc.tt, tc.target, tc.current, res.Triggered, tc.want)
			}
		})
	}
}

func TestEvaluate_BuyScenario(t *testing.T) {
	res := Evaluate(target(types.TargetBuy, "150.00"), decimal.RequireFromString("148.50"))

	if !res.Triggered {
		t.Fatal("expected buy target to trigger")
	}
	if !res.Difference.Equal(decimal.RequireFromString("-1.50")) {
		t.Errorf("difference = %s, want -1.50", res.Difference)
	}
	if !res.DifferencePercent.Equal(decimal.RequireFromString("-1.00")) {
		t.Errorf("difference percent = %s, want -1.00", res.DifferencePercent)
	}
}

func TestEvaluate_TrimPercentageIgnored(t *testing.T) {
	tg := target(types.TargetTrim, "100")
	tg.TrimPercentage = decimal.NewNullDecimal(decimal.NewFromInt(25))

	if !Evaluate(tg, decimal.NewFromInt(100)).Triggered {
		t.Error("trim target at threshold should trigger")
	}
	if Evaluate(tg, decimal.NewFromInt(99)).Triggered {
		t.Error("trim target below threshold should not trigger")
	}
}

func TestEvaluate_ZeroTargetPrice(t *testing.T) {
	res := Evaluate(target(types.TargetSell, "0"), decimal.NewFromInt(5))
	if !res.DifferencePercent.IsZero() {
		t.Errorf("difference percent = %s, want 0", res.DifferencePercent)
	}
}

func TestEvaluate_Pure(t *testing.T) {
	tg := target(types.TargetSell, "42")
	price := decimal.RequireFromString("43.5")

	first := Evaluate(tg, price)
	second := Evaluate(tg, price)
	if first.Triggered != second.Triggered || !first.Difference.Equal(second.Difference) ||
		!first.DifferencePercent.Equal(second.DifferencePercent) {
		t.Errorf("repeated evaluation differs: %+v vs %+v", first, second)
	}
	if !tg.Price.Equal(decimal.NewFromInt(42)) {
		t.Error("target mutated by evaluation")
	}
}
