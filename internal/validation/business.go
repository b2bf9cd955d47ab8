package validation

import (
	"fmt"
	"time"

	"github.com/tradecapture/tradecapture/internal/document"
)

// DateFormat is the fixed calendar format for date-valued fields.
const DateFormat = "2006-01-02"

// BusinessRuleValidator applies semantic checks independent of structure.
// Date-valued fields must parse as YYYY-MM-DD; a missing, null, or empty
// field is skipped since the structural validator owns presence checks, but
// a present non-parseable value is an error naming the value and the
// expected format.
type BusinessRuleValidator struct {
	dateFields []string
}

// NewBusinessRuleValidator builds a business-rule validator checking the
// given dotted date field paths.
func NewBusinessRuleValidator(dateFields []string) *BusinessRuleValidator {
	return &BusinessRuleValidator{dateFields: dateFields}
}

func (v *BusinessRuleValidator) Validate(doc document.Document) Result {
	var errs []string

	for _, path := range v.dateFields {
		raw, present := document.Get(doc, path)
		if !present || raw == nil {
			continue
		}

		s, isStr := raw.(string)
		if !isStr {
			errs = append(errs, fmt.Sprintf("Invalid %s: %v is not a date string. Expected YYYY-MM-DD", path, raw))
			continue
		}
		if s == "" {
			continue
		}
		if _, err := time.Parse(DateFormat, s); err != nil {
			errs = append(errs, fmt.Sprintf("Invalid %s format: %s. Expected YYYY-MM-DD", path, s))
		}
	}

	return finish(errs, nil)
}
