package famulus

import (
	"os"
	"testing"

	"github.com/zoobzio/capitan"
)

// TestMain enables capitan's synchronous event processing so signal
// assertions run deterministically instead of racing the async workers.
func TestMain(m *testing.M) {
	capitan.Configure(capitan.WithSyncMode())
	os.Exit(m.Run())
}
