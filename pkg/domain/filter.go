package domain

// Scenario narrows a step sequence for a coverage- or jurisdiction-scoped
// premium preview. The zero scenario selects every step.
type Scenario struct {
	// Coverage is the selected coverage display name; empty means no
	// coverage restriction.
	Coverage string `json:"coverage,omitempty"`
	// States holds the selected jurisdiction codes; empty means no
	// jurisdiction restriction.
	States []string `json:"states,omitempty"`
}

// IsZero reports whether the scenario imposes no restriction.
func (s Scenario) IsZero() bool {
	return s.Coverage == "" && len(s.States) == 0
}

// FilterSteps returns the subset of steps visible under the scenario,
// preserving order. A factor passes the coverage test iff no coverage is
// selected or its coverage set contains the selection. Every step passes the
// jurisdiction test iff no states are selected or its applicability covers
// all selected states simultaneously; operands carry their own applicability
// but are structural and never coverage-filtered. The input is not mutated.
func FilterSteps(steps []Step, scenario Scenario) []Step {
	if scenario.IsZero() {
		return append([]Step(nil), steps...)
	}
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		if len(scenario.States) > 0 && !step.Applicability.CoversAll(scenario.States) {
			continue
		}
		if step.Kind == StepFactor && scenario.Coverage != "" && !containsCoverage(step.Coverages, scenario.Coverage) {
			continue
		}
		out = append(out, step)
	}
	return out
}

func containsCoverage(coverages []string, name string) bool {
	for _, c := range coverages {
		if c == name {
			return true
		}
	}
	return false
}
