package domain

import (
	"alignercore/testutil"
	"testing"
)

// TestDomainImportsOnlyStdlib keeps the domain layer free of module-internal
// and third-party packages so every backend and service can depend on it.
func TestDomainImportsOnlyStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.NonStdlib, "domain must only import the standard library")
}
