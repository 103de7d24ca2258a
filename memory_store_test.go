package credcore_test

import (
	"testing"

	"github.com/MrEthical07/credcore"
	"github.com/MrEthical07/credcore/storetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) credcore.AccountStore {
		return credcore.NewMemoryStore()
	})
}
