package domain

import (
	"fmt"
	"math"
)

// Premium is the outcome of evaluating a product's step sequence. Defined is
// false when no factor step was seen, in which case the premium renders N/A.
type Premium struct {
	Amount  float64 `json:"amount"`
	Defined bool    `json:"defined"`
}

// Display renders the premium for the administrative screens.
func (p Premium) Display() string {
	if !p.Defined {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", p.Amount)
}

// EvaluatePremium folds the ascending-order step sequence into a single
// premium. The fold keeps a running result and the most recently seen
// operand symbol:
//
//   - a factor seeds the result when it is still unset, ignoring any pending
//     operand; otherwise the pending operand combines the factor's value into
//     the result. A nil value counts as zero. Division by zero is a silent
//     no-op, as is the "=" symbol.
//   - an operand overwrites the pending symbol.
//
// The pending operand is deliberately not cleared after it applies: it
// reapplies to every subsequent factor until a new operand overwrites it.
// Historical premium figures depend on that behavior, so it must not be
// "corrected" here.
//
// The fold is pure; callers filter the sequence first for scenario previews.
func EvaluatePremium(steps []Step) Premium {
	var (
		result     float64
		haveResult bool
		pending    OperandSymbol
	)
	for _, step := range steps {
		switch step.Kind {
		case StepOperand:
			pending = step.Symbol
		case StepFactor:
			var v float64
			if step.Value != nil {
				v = *step.Value
			}
			if !haveResult {
				result = v
				haveResult = true
				continue
			}
			switch pending {
			case OperandAdd:
				result += v
			case OperandSubtract:
				result -= v
			case OperandMultiply:
				result *= v
			case OperandDivide:
				if v != 0 {
					result /= v
				}
			}
			// OperandAssign and an unset pending leave the result unchanged.
		}
	}
	if !haveResult {
		return Premium{}
	}
	return Premium{Amount: roundHundredths(result), Defined: true}
}

// roundHundredths rounds half away from zero to two decimal places for
// display parity with the administrative screens.
func roundHundredths(v float64) float64 {
	return math.Round(v*100) / 100
}
