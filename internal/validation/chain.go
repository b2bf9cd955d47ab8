package validation

import "github.com/tradecapture/tradecapture/internal/document"

// Validator is one independent check over a trade document.
type Validator interface {
	// Validate inspects the document and reports errors and warnings. It
	// must not mutate the document.
	Validate(doc document.Document) Result
}

// Chain is an ordered list of validators. Every validator runs; there is no
// short-circuit on first failure, so a caller sees the complete finding set
// in one pass. Order does not affect the outcome, only the ordering of
// messages.
type Chain struct {
	validators []Validator
}

// NewChain builds a chain from the given validators.
func NewChain(validators ...Validator) Chain {
	return Chain{validators: validators}
}

// Validate runs every validator and unions the findings.
func (c Chain) Validate(doc document.Document) Result {
	var errs, warns []string
	for _, v := range c.validators {
		r := v.Validate(doc)
		errs = append(errs, r.Errors...)
		warns = append(warns, r.Warnings...)
	}
	return finish(errs, warns)
}
