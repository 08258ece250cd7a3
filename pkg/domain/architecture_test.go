package domain

import (
	"bloodsync/testutil"
	"testing"
)

func TestDomainHasNoInternalImports(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden, "domain types must stay importable from outside the module")
}
