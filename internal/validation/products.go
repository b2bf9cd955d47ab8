package validation

import (
	"fmt"

	"github.com/tradecapture/tradecapture/internal/document"
)

// IRSwapValidator checks the interest-rate swap product shape: swapDetails
// present, swapLegs a non-empty sequence, and every leg carrying direction
// and currency.
type IRSwapValidator struct{}

func (IRSwapValidator) Validate(doc document.Document) Result {
	var errs []string

	if !hasSection(doc, "swapDetails") {
		errs = append(errs, "IR Swap missing required field: swapDetails")
	}

	legs, _ := document.Get(doc, "swapLegs")
	seq, isSeq := legs.([]interface{})
	if !isSeq || len(seq) == 0 {
		errs = append(errs, "IR Swap must have at least one leg in swapLegs array")
		return finish(errs, nil)
	}

	for i, raw := range seq {
		leg, isMap := raw.(document.Document)
		if !isMap {
			errs = append(errs, fmt.Sprintf("swapLegs[%d] is not an object", i))
			continue
		}
		if isBlank(leg["direction"]) {
			errs = append(errs, fmt.Sprintf("swapLegs[%d] missing required field: direction", i))
		}
		if isBlank(leg["currency"]) {
			errs = append(errs, fmt.Sprintf("swapLegs[%d] missing required field: currency", i))
		}
	}

	return finish(errs, nil)
}

// CommodityOptionValidator checks the commodity option product shape.
type CommodityOptionValidator struct{}

func (CommodityOptionValidator) Validate(doc document.Document) Result {
	if !hasSection(doc, "commodityDetails") {
		return finish([]string{"Commodity Option missing required field: commodityDetails"}, nil)
	}
	return ok()
}

// IndexSwapValidator checks the index swap product shape.
type IndexSwapValidator struct{}

func (IndexSwapValidator) Validate(doc document.Document) Result {
	if !hasSection(doc, "leg") {
		return finish([]string{"Index Swap missing required field: leg"}, nil)
	}
	return ok()
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, isStr := v.(string)
	return isStr && s == ""
}
