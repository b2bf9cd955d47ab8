package validation

import "github.com/tradecapture/tradecapture/internal/document"

// Registry maps trade types to their validator sets and assembles the chain
// for a given document: universal validators first, then the detected
// type's validators. It mirrors the composition order in which findings are
// reported, though ordering never changes the outcome.
type Registry struct {
	universal []Validator
	byType    map[TradeType][]Validator
}

// NewRegistry builds a registry with the given universal validators and the
// built-in product validators for each supported trade type.
func NewRegistry(universal ...Validator) *Registry {
	return &Registry{
		universal: universal,
		byType: map[TradeType][]Validator{
			TypeIRSwap:          {IRSwapValidator{}},
			TypeCommodityOption: {CommodityOptionValidator{}},
			TypeIndexSwap:       {IndexSwapValidator{}},
		},
	}
}

// Register adds validators for a trade type, appending to any already
// registered.
func (r *Registry) Register(t TradeType, validators ...Validator) {
	r.byType[t] = append(r.byType[t], validators...)
}

// SupportedTypes lists the trade types with registered validators.
func (r *Registry) SupportedTypes() []TradeType {
	types := make([]TradeType, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	return types
}

// Validate detects the document's trade type, runs the universal chain plus
// the type-specific chain, and unions the findings. An undetectable trade
// type is a structural error: the universal validators still run so the
// caller sees every finding, but the result can never succeed.
func (r *Registry) Validate(doc document.Document) Result {
	tradeType := Detect(doc)

	validators := r.universal
	if tradeType != TypeUnknown {
		validators = append(append([]Validator{}, r.universal...), r.byType[tradeType]...)
	}

	result := NewChain(validators...).Validate(doc)
	if tradeType == TypeUnknown {
		result.Errors = append(result.Errors, "unable to detect trade type")
		result.Success = false
	}
	result.TradeType = string(tradeType)
	return result
}
