package validation

import "github.com/tradecapture/tradecapture/internal/document"

// TradeType classifies a document's product shape.
type TradeType string

const (
	TypeIRSwap          TradeType = "ir-swap"
	TypeCommodityOption TradeType = "commodity-option"
	TypeIndexSwap       TradeType = "index-swap"
	TypeUnknown         TradeType = "unknown"
)

// Detect classifies a trade document from its discriminating top-level
// sections. Detection failure is a hard validation error downstream, never a
// silent skip.
//
// Discriminators, checked in order:
//
//	swapDetails or swapLegs     -> ir-swap
//	commodityDetails or premium -> commodity-option
//	leg                         -> index-swap
func Detect(doc document.Document) TradeType {
	if hasSection(doc, "swapDetails") || hasSection(doc, "swapLegs") {
		return TypeIRSwap
	}
	if hasSection(doc, "commodityDetails") || hasSection(doc, "premium") {
		return TypeCommodityOption
	}
	if hasSection(doc, "leg") {
		return TypeIndexSwap
	}
	return TypeUnknown
}

// hasSection reports whether the field is present with a non-null value.
func hasSection(doc document.Document, path string) bool {
	v, ok := document.Get(doc, path)
	return ok && v != nil
}
