// Package filter evaluates field-operator-value predicates against trade
// documents. A filter is a set of dotted-path predicates combined with AND;
// callers compose OR by issuing multiple queries.
package filter

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/tradecapture/tradecapture/internal/document"
)

// Supported predicate operators.
const (
	OpEq    = "eq"
	OpNe    = "ne"
	OpGt    = "gt"
	OpGte   = "gte"
	OpLt    = "lt"
	OpLte   = "lte"
	OpRegex = "regex"
	OpIn    = "in"
	OpNin   = "nin"
)

// ErrInvalidFilter marks a malformed filter: an unknown operator, a regex
// that does not compile, or an in/nin operand that is not a list. It is
// reported at parse time, never per document.
var ErrInvalidFilter = errors.New("invalid filter")

// predicate is one compiled field condition.
type predicate struct {
	path    string
	op      string
	operand interface{}
	re      *regexp.Regexp // compiled pattern, regex op only
}

// Filter is a compiled set of predicates. The zero-predicate filter matches
// every document. A Filter is immutable after Parse and safe for concurrent
// use.
type Filter struct {
	predicates []predicate
}

// Parse compiles the wire representation of a filter: a mapping from dotted
// field path to an operator-to-operand mapping, e.g.
//
//	{"data.notional": {"gte": 1000000, "lte": 10000000}}
//
// Regex patterns are compiled here so Matches stays cheap and error-free.
func Parse(raw map[string]map[string]interface{}) (*Filter, error) {
	f := &Filter{}

	for path, conditions := range raw {
		for op, operand := range conditions {
			p := predicate{path: path, op: op, operand: operand}

			switch op {
			case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
				// No compile step needed.
			case OpRegex:
				pattern, ok := operand.(string)
				if !ok {
					return nil, fmt.Errorf("%w: regex operand for %q must be a string, got %T",
						ErrInvalidFilter, path, operand)
				}
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("%w: bad regex %q for %q: %v",
						ErrInvalidFilter, pattern, path, err)
				}
				p.re = re
			case OpIn, OpNin:
				if _, ok := operand.([]interface{}); !ok {
					return nil, fmt.Errorf("%w: %q operand for %q must be a list, got %T",
						ErrInvalidFilter, op, path, operand)
				}
			default:
				return nil, fmt.Errorf("%w: unknown operator %q for %q", ErrInvalidFilter, op, path)
			}

			f.predicates = append(f.predicates, p)
		}
	}

	return f, nil
}

// Empty reports whether the filter has no predicates.
func (f *Filter) Empty() bool {
	return f == nil || len(f.predicates) == 0
}

// Matches evaluates every predicate against doc with AND semantics. A
// predicate whose path is absent from the document fails. Matches is a pure
// function: no side effects, no errors.
func (f *Filter) Matches(doc document.Document) bool {
	if f == nil {
		return true
	}
	for _, p := range f.predicates {
		value, ok := document.Get(doc, p.path)
		if !ok {
			return false
		}
		if !p.matches(value) {
			return false
		}
	}
	return true
}

func (p predicate) matches(value interface{}) bool {
	switch p.op {
	case OpEq:
		return equals(value, p.operand)
	case OpNe:
		return !equals(value, p.operand)
	case OpGt:
		cmp, ok := compare(value, p.operand)
		return ok && cmp > 0
	case OpGte:
		cmp, ok := compare(value, p.operand)
		return ok && cmp >= 0
	case OpLt:
		cmp, ok := compare(value, p.operand)
		return ok && cmp < 0
	case OpLte:
		cmp, ok := compare(value, p.operand)
		return ok && cmp <= 0
	case OpRegex:
		s, ok := value.(string)
		return ok && p.re.MatchString(s)
	case OpIn:
		for _, candidate := range p.operand.([]interface{}) {
			if equals(value, candidate) {
				return true
			}
		}
		return false
	case OpNin:
		for _, candidate := range p.operand.([]interface{}) {
			if equals(value, candidate) {
				return false
			}
		}
		return true
	}
	return false
}
