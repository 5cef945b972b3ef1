package domain

// JurisdictionCodes lists the fixed enumeration of 50 two-letter codes in the
// canonical column order used by the exchange document. The order is part of
// the file format and must not change.
var JurisdictionCodes = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "FL", "GA",
	"HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME", "MD",
	"MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ",
	"NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC",
	"SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI", "WY",
}

var jurisdictionIndex = func() map[string]int {
	idx := make(map[string]int, len(JurisdictionCodes))
	for i, code := range JurisdictionCodes {
		idx[code] = i
	}
	return idx
}()

// IsJurisdiction reports whether code is a member of the fixed enumeration.
func IsJurisdiction(code string) bool {
	_, ok := jurisdictionIndex[code]
	return ok
}

// JurisdictionIndex returns the canonical column position of code.
func JurisdictionIndex(code string) (int, bool) {
	i, ok := jurisdictionIndex[code]
	return i, ok
}
