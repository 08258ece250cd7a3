package server

import (
	"bloodsync/testutil"
	"testing"
)

func TestServerGoesThroughService(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.PersistenceImportForbidden, "handlers reach storage only through core.Service")
}
