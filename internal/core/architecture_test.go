package core

import (
	"testing"

	"popcatalog/testutil"
)

// The catalog reaches storage only through domain.CatalogBackend and blob.Store.
func TestCoreDoesNotImportDrivers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DriverImportForbidden, "drivers live under internal/infra")
}
