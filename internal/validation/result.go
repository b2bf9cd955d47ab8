// Package validation implements the chained validation pipeline every trade
// document must pass before the store accepts a mutation. A chain runs every
// validator unconditionally and unions their errors and warnings; warnings
// never block a write.
package validation

import (
	"fmt"
	"strings"
)

// Result is the outcome of one validation call. Success is true iff Errors
// is empty. Results are ephemeral: produced per call, never persisted.
type Result struct {
	Success   bool     `json:"success"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	TradeType string   `json:"tradeType,omitempty"`
}

// OK reports whether the result carries no errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Summary returns a human-readable rendering, used by CLI output and logs.
func (r Result) Summary() string {
	var b strings.Builder
	if r.OK() {
		fmt.Fprintf(&b, "validation passed (%d warnings)\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "validation failed: %d errors, %d warnings\n", len(r.Errors), len(r.Warnings))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  ERROR: %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  WARN:  %s\n", w)
	}
	return b.String()
}

// ok builds a passing result with no findings.
func ok() Result {
	return Result{Success: true}
}

// finish sets Success from the accumulated errors.
func finish(errs, warns []string) Result {
	return Result{Success: len(errs) == 0, Errors: errs, Warnings: warns}
}
