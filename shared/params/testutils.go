package params

import (
	"testing"
)

// SetupTestConfigCleanup preserves the active configuration so tests can
// modify it without affecting other tests.
func SetupTestConfigCleanup(t testing.TB) {
	prevConfig := PoAConfig().Copy()
	t.Cleanup(func() {
		OverridePoAConfig(prevConfig)
	})
}
