// Package testing exposes database setup helpers shared by the validator
// package tests.
package testing

import (
	"testing"

	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
)

// SetupDB instantiates and returns a DB instance for the validator, torn
// down automatically when the test finishes.
func SetupDB(t testing.TB) iface.ValidatorDB {
	db, err := kv.NewKVStore(t.TempDir(), &kv.Config{})
	if err != nil {
		t.Fatalf("Failed to instantiate DB: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
		if err := db.ClearDB(); err != nil {
			t.Fatalf("Failed to clear database: %v", err)
		}
	})
	return db
}
