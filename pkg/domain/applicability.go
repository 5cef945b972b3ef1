package domain

import (
	"encoding/json"
	"sort"
)

// Applicability is the jurisdiction scope of a step. The zero value is
// Unrestricted, meaning the step applies in every jurisdiction. A restricted
// applicability holds an explicit sorted set of jurisdiction codes; an empty
// restricted set matches nothing. The tagged representation keeps
// "applies everywhere" distinct from "explicitly all 50 codes" so exports can
// round-trip the difference.
type Applicability struct {
	restricted bool
	states     []string
}

// UnrestrictedApplicability returns the scope that covers every jurisdiction.
func UnrestrictedApplicability() Applicability {
	return Applicability{}
}

// RestrictedTo returns a scope covering exactly the supplied codes. The set
// is sorted and deduplicated; code validity is checked by rules, not here.
func RestrictedTo(codes ...string) Applicability {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	states := make([]string, 0, len(set))
	for code := range set {
		states = append(states, code)
	}
	sort.Strings(states)
	return Applicability{restricted: true, states: states}
}

// Unrestricted reports whether the scope covers every jurisdiction.
func (a Applicability) Unrestricted() bool {
	return !a.restricted
}

// States returns a copy of the restricted code set. It returns nil when the
// scope is unrestricted.
func (a Applicability) States() []string {
	if !a.restricted {
		return nil
	}
	return append([]string(nil), a.states...)
}

// Covers reports whether the scope applies in the given jurisdiction.
func (a Applicability) Covers(code string) bool {
	if !a.restricted {
		return true
	}
	i := sort.SearchStrings(a.states, code)
	return i < len(a.states) && a.states[i] == code
}

// CoversAll reports whether the scope applies in every one of the given
// jurisdictions simultaneously.
func (a Applicability) CoversAll(codes []string) bool {
	for _, code := range codes {
		if !a.Covers(code) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy safe to retain across transactions.
func (a Applicability) Clone() Applicability {
	if !a.restricted {
		return Applicability{}
	}
	return Applicability{restricted: true, states: append([]string(nil), a.states...)}
}

// Equal reports whether two scopes cover exactly the same jurisdictions with
// the same representation.
func (a Applicability) Equal(other Applicability) bool {
	if a.restricted != other.restricted {
		return false
	}
	if len(a.states) != len(other.states) {
		return false
	}
	for i, code := range a.states {
		if other.states[i] != code {
			return false
		}
	}
	return true
}

type applicabilityJSON struct {
	All    bool     `json:"all,omitempty"`
	States []string `json:"states,omitempty"`
}

// MarshalJSON encodes the scope as {"all":true} or {"states":[...]}.
func (a Applicability) MarshalJSON() ([]byte, error) {
	if !a.restricted {
		return json.Marshal(applicabilityJSON{All: true})
	}
	states := a.states
	if states == nil {
		states = []string{}
	}
	return json.Marshal(applicabilityJSON{States: states})
}

// UnmarshalJSON decodes the tagged form. Missing or null input decodes as
// unrestricted to match the zero value.
func (a *Applicability) UnmarshalJSON(data []byte) error {
	var raw applicabilityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.All {
		*a = Applicability{}
		return nil
	}
	if raw.States == nil {
		*a = Applicability{}
		return nil
	}
	*a = RestrictedTo(raw.States...)
	return nil
}
