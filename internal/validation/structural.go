package validation

import (
	"fmt"
	"strings"

	"github.com/tradecapture/tradecapture/internal/document"
)

// StructuralValidator checks that a configured set of required field paths
// exists in the document. A path whose value is an empty string fails unless
// the path is in the allow-empty set (fields the backend fills in at save
// time, e.g. general.tradeId on presave payloads). An intermediate key that
// is present but holds a non-mapping value is a shape error, not a silent
// miss.
type StructuralValidator struct {
	required   []string
	allowEmpty map[string]bool
}

// NewStructuralValidator builds a structural validator for the given
// required paths. allowEmpty lists paths whose value may be an empty string.
func NewStructuralValidator(required, allowEmpty []string) *StructuralValidator {
	allowed := make(map[string]bool, len(allowEmpty))
	for _, p := range allowEmpty {
		allowed[p] = true
	}
	return &StructuralValidator{required: required, allowEmpty: allowed}
}

func (v *StructuralValidator) Validate(doc document.Document) Result {
	var errs []string

	for _, path := range v.required {
		value, err := resolveRequired(doc, path)
		if err != "" {
			errs = append(errs, err)
			continue
		}

		if s, isStr := value.(string); isStr && s == "" && !v.allowEmpty[path] {
			errs = append(errs, fmt.Sprintf("Required field empty: %s", path))
		}
	}

	return finish(errs, nil)
}

// resolveRequired walks the path one segment at a time so that a missing key
// and a wrongly shaped intermediate produce distinct errors.
func resolveRequired(doc document.Document, path string) (interface{}, string) {
	keys := strings.Split(path, ".")
	var current interface{} = doc

	for i, key := range keys {
		m, isMap := current.(document.Document)
		if !isMap {
			return nil, fmt.Sprintf("Required field has wrong shape: %s (expected nested object at %s)",
				path, strings.Join(keys[:i], "."))
		}
		next, ok := m[key]
		if !ok {
			return nil, fmt.Sprintf("Required field missing: %s", path)
		}
		current = next
	}
	return current, ""
}
