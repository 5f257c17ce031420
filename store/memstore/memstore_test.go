package memstore_test

import (
	"testing"

	"github.com/cloudx-io/confidentialbid/store"
	"github.com/cloudx-io/confidentialbid/store/memstore"
	"github.com/cloudx-io/confidentialbid/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.TestStore(t, func(t *testing.T) store.Store { return memstore.NewStore() })
}
