package promotion

import "testing"

func testRules() []Rule {
	return []Rule{
		{
			Code:        "FULL_20000_OFF_2000",
			Expression:  "subtotal >= 20000",
			Type:        DiscountTypeFixedAmount,
			AmountCents: 2000,
		},
		{
			Code:         "VIP_12_PERCENT",
			Expression:   `tier == "vip"`,
			Type:         DiscountTypePercentage,
			Percent:      12,
			CeilingCents: 5000,
		},
	}
}

func TestEngine_NoRuleMatches(t *testing.T) {
	engine, err := NewEngine(testRules())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	quote, err := engine.BestDiscount(Fact{SubtotalCents: 5000, ItemCount: 1, CustomerTier: "standard"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if quote.DiscountCents != 0 || quote.Code != "" {
		t.Errorf("Expected zero quote, got %+v", quote)
	}
}

func TestEngine_FixedAmountMatch(t *testing.T) {
	engine, _ := NewEngine(testRules())

	quote, err := engine.BestDiscount(Fact{SubtotalCents: 25000, ItemCount: 2, CustomerTier: "standard"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if quote.Code != "FULL_20000_OFF_2000" || quote.DiscountCents != 2000 {
		t.Errorf("Expected FULL_20000_OFF_2000/2000, got %+v", quote)
	}
}

func TestEngine_BestOfMultipleMatches(t *testing.T) {
	engine, _ := NewEngine(testRules())

	// VIP 12% of 25000 = 3000 > 满减 2000
	quote, err := engine.BestDiscount(Fact{SubtotalCents: 25000, ItemCount: 2, CustomerTier: "vip"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if quote.Code != "VIP_12_PERCENT" || quote.DiscountCents != 3000 {
		t.Errorf("Expected VIP_12_PERCENT/3000, got %+v", quote)
	}
}

func TestEngine_PercentageCeiling(t *testing.T) {
	engine, _ := NewEngine(testRules())

	// 12% of 100000 = 12000，封顶 5000
	quote, err := engine.BestDiscount(Fact{SubtotalCents: 100000, ItemCount: 1, CustomerTier: "vip"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if quote.Code != "VIP_12_PERCENT" || quote.DiscountCents != 5000 {
		t.Errorf("Expected capped 5000, got %+v", quote)
	}
}

func TestEngine_DiscountNeverExceedsSubtotal(t *testing.T) {
	engine, err := NewEngine([]Rule{{
		Code:        "HUGE",
		Expression:  "subtotal > 0",
		Type:        DiscountTypeFixedAmount,
		AmountCents: 99999,
	}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	quote, _ := engine.BestDiscount(Fact{SubtotalCents: 1000, ItemCount: 1})
	if quote.DiscountCents != 1000 {
		t.Errorf("Expected discount clamped to subtotal 1000, got %d", quote.DiscountCents)
	}
}

func TestEngine_RejectsBadExpressions(t *testing.T) {
	if _, err := NewEngine([]Rule{{Code: "BROKEN", Expression: "subtotal >="}}); err == nil {
		t.Error("Expected error for syntactically invalid expression")
	}
	if _, err := NewEngine([]Rule{{Code: "NOT_BOOL", Expression: "subtotal + 1"}}); err == nil {
		t.Error("Expected error for non-bool expression")
	}
}
