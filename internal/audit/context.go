// Package audit holds the mutation provenance model: the four-field audit
// context every mutating store call must carry, the guard that enforces it,
// and the append-only operation log that records every successful mutation.
package audit

import (
	"fmt"
	"strings"

	"github.com/tradecapture/tradecapture/internal/validation"
)

// Context is the audit metadata recorded with every mutation. All four
// fields must be non-empty after trimming or the mutation is rejected before
// it reaches the store. Contexts are never required for reads.
type Context struct {
	User   string `json:"user"`
	Agent  string `json:"agent"`
	Action string `json:"action"`
	Intent string `json:"intent"`
}

// Check validates the context, producing one error per missing or empty
// field. This is the ContextGuard applied to every mutating operation.
func (c Context) Check() validation.Result {
	var errs []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"user", c.User},
		{"agent", c.Agent},
		{"action", c.Action},
		{"intent", c.Intent},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, fmt.Sprintf("Context field %q missing or empty", f.name))
		}
	}
	return validation.Result{Success: len(errs) == 0, Errors: errs}
}
