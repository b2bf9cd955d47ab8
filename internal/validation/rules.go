package validation

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/tradecapture/tradecapture/internal/document"
)

// Rule severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Rule is a configurable business-rule check expressed as a CEL condition
// over the trade document. A rule fires when its condition evaluates to
// true; a fired rule contributes its message at its severity.
type Rule struct {
	Name      string
	Condition string
	Severity  string // error or warning; defaults to error
	Message   string
}

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// RuleValidator evaluates configured CEL rules against a document.
// Expressions are compiled once at construction; evaluation is lock-free
// and safe for concurrent use. A rule whose condition cannot evaluate
// against a particular document (e.g. it indexes a field the document does
// not carry) is skipped for that document, since document shape varies by
// trade type.
type RuleValidator struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewRuleValidator compiles the given rules. A condition that fails to
// compile or does not evaluate to bool is a construction error, surfaced at
// config load time rather than per document.
func NewRuleValidator(rules []Rule, logger *slog.Logger) (*RuleValidator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("trade", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("tradeType", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	v := &RuleValidator{logger: logger.With("component", "validation.RuleValidator")}

	for _, r := range rules {
		ast, issues := env.Compile(r.Condition)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %q: CEL compile error in %q: %w", r.Name, r.Condition, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("rule %q: condition %q must evaluate to bool, got %s",
				r.Name, r.Condition, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("rule %q: CEL program creation failed: %w", r.Name, err)
		}

		if r.Severity == "" {
			r.Severity = SeverityError
		}
		if r.Severity != SeverityError && r.Severity != SeverityWarning {
			return nil, fmt.Errorf("rule %q: unknown severity %q", r.Name, r.Severity)
		}
		if r.Message == "" {
			r.Message = fmt.Sprintf("business rule %s violated", r.Name)
		}

		v.rules = append(v.rules, compiledRule{rule: r, program: prg})
		logger.Debug("compiled business rule", "rule", r.Name, "condition", r.Condition)
	}

	return v, nil
}

// Len returns the number of compiled rules.
func (v *RuleValidator) Len() int {
	return len(v.rules)
}

func (v *RuleValidator) Validate(doc document.Document) Result {
	var errs, warns []string

	vars := map[string]interface{}{
		"trade":     map[string]interface{}(doc),
		"tradeType": string(Detect(doc)),
	}
	if vars["trade"] == nil {
		vars["trade"] = map[string]interface{}{}
	}

	for _, cr := range v.rules {
		out, _, err := cr.program.Eval(vars)
		if err != nil {
			// The condition references fields this document does not have.
			v.logger.Debug("rule skipped for document", "rule", cr.rule.Name, "error", err)
			continue
		}
		fired, isBool := out.Value().(bool)
		if !isBool || !fired {
			continue
		}

		if cr.rule.Severity == SeverityWarning {
			warns = append(warns, cr.rule.Message)
		} else {
			errs = append(errs, cr.rule.Message)
		}
	}

	return finish(errs, warns)
}
