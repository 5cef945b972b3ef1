package domain

import (
	"testing"

	"ratecore/testutil"
)

// TestDomainDoesNotImportInternal enforces the architectural rule that the
// domain layer must not depend on any internal implementation packages. Store
// and adapter concerns stay behind the interfaces defined here.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertPackageImports(t, ".", testutil.ImportRule{
		Forbidden: testutil.InternalImports,
		Reason:    "domain stays free of store and adapter implementations",
	})
}
