package memory

import (
	"testing"

	"github.com/loykin/walletvisor/internal/store/storetest"
)

func TestMemoryContract(t *testing.T) {
	storetest.Run(t, New())
}
