package validation

import (
	"strings"
	"testing"

	"github.com/tradecapture/tradecapture/internal/document"
)

// coreRequiredFields matches the default config shipped by `tradecapture init`.
var coreRequiredFields = []string{
	"general.tradeId",
	"general.transactionRoles.priceMaker",
	"common.book",
	"common.tradeDate",
	"common.counterparty",
	"common.inputDate",
}

var coreAllowEmpty = []string{
	"general.tradeId",
	"general.transactionRoles.priceMaker",
}

func validIRSwap() document.Document {
	return document.Document{
		"general": document.Document{
			"tradeId":          "TRD-001",
			"transactionRoles": document.Document{"priceMaker": "desk-a"},
		},
		"common": document.Document{
			"book":         "B1",
			"tradeDate":    "2026-01-20",
			"counterparty": "CP1",
			"inputDate":    "2026-01-20",
		},
		"swapDetails": document.Document{"effectiveDate": "2026-02-01"},
		"swapLegs": []interface{}{
			document.Document{"direction": "pay", "currency": "USD"},
			document.Document{"direction": "receive", "currency": "EUR"},
		},
	}
}

func hasError(r Result, substr string) bool {
	for _, e := range r.Errors {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestStructuralValidator(t *testing.T) {
	v := NewStructuralValidator(coreRequiredFields, coreAllowEmpty)

	t.Run("complete document passes", func(t *testing.T) {
		r := v.Validate(validIRSwap())
		if !r.Success {
			t.Fatalf("expected success, errors: %v", r.Errors)
		}
	})

	t.Run("presave fields may be blank", func(t *testing.T) {
		doc := validIRSwap()
		document.Set(doc, "general.tradeId", "")
		document.Set(doc, "general.transactionRoles.priceMaker", "")
		r := v.Validate(doc)
		if !r.Success {
			t.Fatalf("blank presave fields should pass, errors: %v", r.Errors)
		}
	})

	t.Run("missing subtree names the path", func(t *testing.T) {
		doc := validIRSwap()
		delete(doc["general"].(document.Document), "transactionRoles")
		r := v.Validate(doc)
		if r.Success {
			t.Fatal("expected failure")
		}
		if !hasError(r, "general.transactionRoles.priceMaker") {
			t.Errorf("error should name the missing path, got %v", r.Errors)
		}
	})

	t.Run("empty non-presave field fails", func(t *testing.T) {
		doc := validIRSwap()
		document.Set(doc, "common.book", "")
		r := v.Validate(doc)
		if !hasError(r, "Required field empty: common.book") {
			t.Errorf("got %v", r.Errors)
		}
	})

	t.Run("wrong shape intermediate is an error", func(t *testing.T) {
		doc := validIRSwap()
		document.Set(doc, "general", "not-an-object")
		r := v.Validate(doc)
		if r.Success {
			t.Fatal("expected failure")
		}
		if !hasError(r, "wrong shape") {
			t.Errorf("expected shape error, got %v", r.Errors)
		}
	})

	t.Run("all findings reported at once", func(t *testing.T) {
		r := v.Validate(document.Document{})
		if len(r.Errors) != len(coreRequiredFields) {
			t.Errorf("empty document should fail every required field, got %d errors: %v",
				len(r.Errors), r.Errors)
		}
	})
}

func TestBusinessRuleValidator(t *testing.T) {
	v := NewBusinessRuleValidator([]string{"common.tradeDate", "common.inputDate"})

	t.Run("valid dates pass", func(t *testing.T) {
		r := v.Validate(validIRSwap())
		if !r.Success {
			t.Fatalf("errors: %v", r.Errors)
		}
	})

	t.Run("bad format is an error naming the value", func(t *testing.T) {
		doc := validIRSwap()
		document.Set(doc, "common.tradeDate", "20/01/2026")
		r := v.Validate(doc)
		if r.Success {
			t.Fatal("expected failure")
		}
		if !hasError(r, "20/01/2026") || !hasError(r, "YYYY-MM-DD") {
			t.Errorf("error should name the value and expected format, got %v", r.Errors)
		}
	})

	t.Run("missing and empty dates are skipped", func(t *testing.T) {
		doc := validIRSwap()
		delete(doc["common"].(document.Document), "tradeDate")
		document.Set(doc, "common.inputDate", "")
		r := v.Validate(doc)
		if !r.Success {
			t.Fatalf("presence is the structural validator's job, errors: %v", r.Errors)
		}
	})

	t.Run("null date is skipped", func(t *testing.T) {
		doc := validIRSwap()
		document.Set(doc, "common.tradeDate", nil)
		if r := v.Validate(doc); !r.Success {
			t.Fatalf("errors: %v", r.Errors)
		}
	})

	t.Run("non-string date is an error", func(t *testing.T) {
		doc := validIRSwap()
		document.Set(doc, "common.tradeDate", 20260120)
		if r := v.Validate(doc); r.Success {
			t.Fatal("expected failure")
		}
	})
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		doc  document.Document
		want TradeType
	}{
		{"swapDetails", document.Document{"swapDetails": document.Document{}}, TypeIRSwap},
		{"swapLegs", document.Document{"swapLegs": []interface{}{}}, TypeIRSwap},
		{"commodityDetails", document.Document{"commodityDetails": document.Document{}}, TypeCommodityOption},
		{"premium", document.Document{"premium": 1200.50}, TypeCommodityOption},
		{"leg", document.Document{"leg": document.Document{}}, TypeIndexSwap},
		{"no discriminator", document.Document{"general": document.Document{}}, TypeUnknown},
		{"null discriminator ignored", document.Document{"leg": nil}, TypeUnknown},
		{"swap wins over leg", document.Document{"swapDetails": document.Document{}, "leg": document.Document{}}, TypeIRSwap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.doc); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIRSwapValidator(t *testing.T) {
	v := IRSwapValidator{}

	t.Run("valid legs pass", func(t *testing.T) {
		if r := v.Validate(validIRSwap()); !r.Success {
			t.Fatalf("errors: %v", r.Errors)
		}
	})

	t.Run("empty legs array fails", func(t *testing.T) {
		doc := validIRSwap()
		doc["swapLegs"] = []interface{}{}
		if r := v.Validate(doc); !hasError(r, "at least one leg") {
			t.Errorf("got %v", r.Errors)
		}
	})

	t.Run("leg missing direction and currency", func(t *testing.T) {
		doc := validIRSwap()
		doc["swapLegs"] = []interface{}{document.Document{"notional": 100}}
		r := v.Validate(doc)
		if !hasError(r, "swapLegs[0] missing required field: direction") {
			t.Errorf("got %v", r.Errors)
		}
		if !hasError(r, "swapLegs[0] missing required field: currency") {
			t.Errorf("got %v", r.Errors)
		}
	})
}

func TestChainRunsEveryValidator(t *testing.T) {
	structural := NewStructuralValidator(coreRequiredFields, coreAllowEmpty)
	business := NewBusinessRuleValidator([]string{"common.tradeDate"})

	doc := validIRSwap()
	delete(doc["common"].(document.Document), "book")        // structural error
	document.Set(doc, "common.tradeDate", "not-a-date")      // business error

	r := NewChain(structural, business).Validate(doc)
	if r.Success {
		t.Fatal("expected failure")
	}
	if !hasError(r, "common.book") {
		t.Error("structural finding missing, chain short-circuited")
	}
	if !hasError(r, "not-a-date") {
		t.Error("business finding missing, chain short-circuited")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(
		NewStructuralValidator(coreRequiredFields, coreAllowEmpty),
		NewBusinessRuleValidator([]string{"common.tradeDate", "common.inputDate"}),
	)

	t.Run("valid ir-swap", func(t *testing.T) {
		r := reg.Validate(validIRSwap())
		if !r.Success {
			t.Fatalf("errors: %v", r.Errors)
		}
		if r.TradeType != string(TypeIRSwap) {
			t.Errorf("TradeType = %q, want %q", r.TradeType, TypeIRSwap)
		}
	})

	t.Run("type specific findings included", func(t *testing.T) {
		doc := validIRSwap()
		delete(doc, "swapDetails")
		r := reg.Validate(doc)
		if !hasError(r, "swapDetails") {
			t.Errorf("got %v", r.Errors)
		}
	})

	t.Run("undetectable type is a hard error", func(t *testing.T) {
		doc := validIRSwap()
		delete(doc, "swapDetails")
		delete(doc, "swapLegs")
		r := reg.Validate(doc)
		if r.Success {
			t.Fatal("expected failure")
		}
		if !hasError(r, "unable to detect trade type") {
			t.Errorf("got %v", r.Errors)
		}
		// Universal validators still ran.
		if r.TradeType != string(TypeUnknown) {
			t.Errorf("TradeType = %q, want unknown", r.TradeType)
		}
	})

	t.Run("warnings never block", func(t *testing.T) {
		warner, err := NewRuleValidator([]Rule{{
			Name:      "always-warn",
			Condition: "true",
			Severity:  SeverityWarning,
			Message:   "heads up",
		}}, nil)
		if err != nil {
			t.Fatal(err)
		}
		reg := NewRegistry(warner)
		r := reg.Validate(validIRSwap())
		if !r.Success {
			t.Fatalf("warning must not block, errors: %v", r.Errors)
		}
		if len(r.Warnings) != 1 || r.Warnings[0] != "heads up" {
			t.Errorf("Warnings = %v", r.Warnings)
		}
	})
}
