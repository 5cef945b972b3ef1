package core

import (
	"context"
	"fmt"
	"strings"

	"ratecore/pkg/domain"
)

// NewStepFieldsRule returns the in-transaction rule enforcing required fields
// on pricing steps: a factor needs a name and at least one coverage, an
// operand needs a recognised symbol.
func NewStepFieldsRule() domain.Rule {
	return stepFieldsRule{}
}

type stepFieldsRule struct{}

func (stepFieldsRule) Name() string { return "step_fields" }

func (stepFieldsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, step := range view.ListAllSteps() {
		switch step.Kind {
		case domain.StepFactor:
			if strings.TrimSpace(step.Name) == "" {
				res.Violations = append(res.Violations, violationFor(step, "factor step requires a name"))
			}
			if len(step.Coverages) == 0 {
				res.Violations = append(res.Violations, violationFor(step, fmt.Sprintf("factor %q requires at least one coverage", step.Name)))
			}
			if step.Rounding != "" && !step.Rounding.Valid() {
				res.Violations = append(res.Violations, violationFor(step, fmt.Sprintf("factor %q has unknown rounding %q", step.Name, step.Rounding)))
			}
		case domain.StepOperand:
			if !step.Symbol.Valid() {
				res.Violations = append(res.Violations, violationFor(step, fmt.Sprintf("operand step has invalid symbol %q", step.Symbol)))
			}
		default:
			res.Violations = append(res.Violations, violationFor(step, fmt.Sprintf("unknown step kind %q", step.Kind)))
		}
	}
	return res, nil
}

func violationFor(step domain.Step, message string) domain.Violation {
	return domain.Violation{
		Rule:     "step_fields",
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityStep,
		EntityID: step.ID,
	}
}
