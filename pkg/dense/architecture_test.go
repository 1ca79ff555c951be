package dense

import (
	"testing"

	"popcatalog/testutil"
)

func TestDenseIsALeafPackage(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportForbidden, "dense arrays must not depend on the catalog")
}
