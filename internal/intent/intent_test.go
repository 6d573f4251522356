package intent

import (
	"errors"
	"testing"
)

func validStock() Intent {
	return Intent{
		Kind: KindStock,
		Stock: &StockIntent{
			Action:     ActionBuy,
			Symbol:     "AAPL",
			AmountType: AmountShares,
			Amount:     100,
			OrderType:  OrderMarket,
		},
	}
}

func validOptions() Intent {
	return Intent{
		Kind: KindOptions,
		Options: &OptionsIntent{
			Action:         ActionBuyToOpen,
			Underlying:     "TSLA",
			ContractType:   ContractCall,
			StrikePrice:    250,
			ExpirationDate: "2026-01-16",
			Quantity:       2,
			OrderType:      OrderMarket,
			Strategy:       StrategySingle,
		},
	}
}

func TestValidate_AcceptsWellFormedIntents(t *testing.T) {
	if err := validStock().Validate(); err != nil {
		t.Errorf("valid stock intent rejected: %v", err)
	}
	if err := validOptions().Validate(); err != nil {
		t.Errorf("valid options intent rejected: %v", err)
	}

	limit := validStock()
	limit.Stock.OrderType = OrderLimit
	limit.Stock.LimitPrice = 150
	if err := limit.Validate(); err != nil {
		t.Errorf("valid limit order rejected: %v", err)
	}

	classB := validStock()
	classB.Stock.Symbol = "BRK.B"
	if err := classB.Validate(); err != nil {
		t.Errorf("share-class symbol rejected: %v", err)
	}
}

func TestValidate_RejectsMalformedIntents(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"empty kind", func(i *Intent) { i.Kind = "" }},
		{"both variants populated", func(i *Intent) { i.Options = validOptions().Options }},
		{"missing stock payload", func(i *Intent) { i.Stock = nil }},
		{"zero amount", func(i *Intent) { i.Stock.Amount = 0 }},
		{"negative amount", func(i *Intent) { i.Stock.Amount = -5 }},
		{"lowercase symbol", func(i *Intent) { i.Stock.Symbol = "aapl" }},
		{"symbol too long", func(i *Intent) { i.Stock.Symbol = "TOOLONG" }},
		{"limit order without price", func(i *Intent) {
			i.Stock.OrderType = OrderLimit
			i.Stock.LimitPrice = 0
		}},
		{"market order with price", func(i *Intent) { i.Stock.LimitPrice = 150 }},
		{"unknown action", func(i *Intent) { i.Stock.Action = "hold" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := validStock()
			tc.mutate(&it)
			err := it.Validate()
			if err == nil {
				t.Fatalf("expected validation error, got nil")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestValidate_RejectsMalformedOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Intent)
	}{
		{"zero strike", func(i *Intent) { i.Options.StrikePrice = 0 }},
		{"zero quantity", func(i *Intent) { i.Options.Quantity = 0 }},
		{"bad expiration", func(i *Intent) { i.Options.ExpirationDate = "Jan 16 2026" }},
		{"unknown strategy", func(i *Intent) { i.Options.Strategy = "butterfly" }},
		{"limit without price", func(i *Intent) { i.Options.OrderType = OrderLimit }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := validOptions()
			tc.mutate(&it)
			if err := it.Validate(); err == nil {
				t.Fatalf("expected validation error, got nil")
			}
		})
	}
}

func TestNormalizeEnums_FoldsVariants(t *testing.T) {
	it := Intent{
		Kind: "Stock",
		Stock: &StockIntent{
			Action:     "Buy",
			Symbol:     " aapl ",
			AmountType: "Shares",
			Amount:     10,
			OrderType:  "MARKET",
		},
	}
	it.NormalizeEnums()
	if err := it.Validate(); err != nil {
		t.Fatalf("normalized intent rejected: %v", err)
	}
	if it.Stock.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", it.Stock.Symbol)
	}

	opt := Intent{
		Kind: "options",
		Options: &OptionsIntent{
			Action:         "BUY-TO-OPEN",
			Underlying:     "tsla",
			ContractType:   "Call",
			StrikePrice:    250,
			ExpirationDate: "2026-01-16",
			Quantity:       1,
			OrderType:      "limit",
			LimitPrice:     3.5,
			Strategy:       "Single",
		},
	}
	opt.NormalizeEnums()
	if err := opt.Validate(); err != nil {
		t.Fatalf("normalized options intent rejected: %v", err)
	}
	if opt.Options.Action != ActionBuyToOpen {
		t.Errorf("action = %q, want %q", opt.Options.Action, ActionBuyToOpen)
	}
}
