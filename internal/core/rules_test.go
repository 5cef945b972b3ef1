package core

import (
	"context"
	"testing"

	"ratecore/internal/infra/persistence/memory"
	"ratecore/pkg/domain"
)

func evaluateRules(t *testing.T, rule Rule, steps ...Step) Result {
	t.Helper()
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		product, err := tx.CreateProduct(Product{Name: "fixture"})
		if err != nil {
			return err
		}
		for _, step := range steps {
			step.ProductID = product.ID
			if _, err := tx.CreateStep(step); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	var res Result
	if viewErr := store.View(context.Background(), func(view domain.TransactionView) error {
		ruleView, ok := view.(domain.RuleView)
		if !ok {
			t.Fatalf("view does not implement RuleView")
		}
		var err error
		res, err = rule.Evaluate(context.Background(), ruleView, nil)
		return err
	}); viewErr != nil {
		t.Fatalf("evaluate: %v", viewErr)
	}
	return res
}

func TestStepFieldsRuleValidCases(t *testing.T) {
	res := evaluateRules(t, NewStepFieldsRule(),
		Step{Kind: StepFactor, Order: 1, Name: "Base", Coverages: []string{"Comp"}},
		Step{Kind: StepOperand, Order: 2, Symbol: OperandAssign},
	)
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %#v", res.Violations)
	}
}

func TestStepFieldsRuleViolations(t *testing.T) {
	res := evaluateRules(t, NewStepFieldsRule(),
		Step{Kind: StepFactor, Order: 1},
		Step{Kind: StepOperand, Order: 2, Symbol: OperandSymbol("^")},
		Step{Kind: StepFactor, Order: 3, Name: "X", Coverages: []string{"C"}, Rounding: "bad"},
	)
	if len(res.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %#v", len(res.Violations), res.Violations)
	}
	for _, v := range res.Violations {
		if v.Severity != SeverityBlock || v.Rule != "step_fields" {
			t.Fatalf("unexpected violation: %#v", v)
		}
	}
}

func TestStepOrderRuleFlagsDuplicates(t *testing.T) {
	res := evaluateRules(t, NewStepOrderRule(),
		Step{Kind: StepFactor, Order: 1, Name: "A", Coverages: []string{"C"}},
		Step{Kind: StepFactor, Order: 1, Name: "B", Coverages: []string{"C"}},
		Step{Kind: StepFactor, Order: 2, Name: "C", Coverages: []string{"C"}},
	)
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %#v", res.Violations)
	}
	if res.Violations[0].Rule != "step_order_unique" || res.Violations[0].Severity != SeverityBlock {
		t.Fatalf("unexpected violation: %#v", res.Violations[0])
	}
}

func TestDefaultRulesEngineBlocksInvalidStep(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		product, err := tx.CreateProduct(Product{Name: "p"})
		if err != nil {
			return err
		}
		_, err = tx.CreateStep(Step{ProductID: product.ID, Kind: StepFactor, Order: 1})
		return err
	})
	if err == nil {
		t.Fatalf("expected blocking violation")
	}
}
