package pgstore_test

import (
	"os"
	"testing"

	"github.com/cloudx-io/confidentialbid/store/pgstore"
	"github.com/cloudx-io/confidentialbid/store/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()

	if os.Getenv(pgstore.TestConnStrEnv) == "" {
		t.Skipf("set %s to run this test", pgstore.TestConnStrEnv)
	}

	storetest.TestStore(t, pgstore.NewTestStore)
}
