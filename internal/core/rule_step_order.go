package core

import (
	"context"
	"fmt"
)

// NewStepOrderRule ensures order values stay unique within each product's
// step sequence. Order values may be sparse; only relative ordering matters.
func NewStepOrderRule() Rule {
	return stepOrderRule{}
}

type stepOrderRule struct{}

func (stepOrderRule) Name() string { return "step_order_unique" }

func (stepOrderRule) Evaluate(_ context.Context, view RuleView, _ []Change) (Result, error) {
	type slot struct {
		productID string
		order     int
	}
	seen := make(map[slot]string)

	res := Result{}
	for _, step := range view.ListAllSteps() {
		key := slot{productID: step.ProductID, order: step.Order}
		if firstID, dup := seen[key]; dup {
			res.Violations = append(res.Violations, Violation{
				Rule:     "step_order_unique",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("steps %s and %s share order %d in product %s", firstID, step.ID, step.Order, step.ProductID),
				Entity:   EntityStep,
				EntityID: step.ID,
			})
			continue
		}
		seen[key] = step.ID
	}
	return res, nil
}
