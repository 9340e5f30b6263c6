// Package db defines the ability to create a new database for the
// proof-of-access validator.
package db

import (
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
)

// Database defines the necessary methods for the validator's DB which may be
// implemented by any key-value or relational database in practice. This is
// the full database interface which should not be used often. Prefer a more
// restrictive interface in this package.
type Database = iface.ValidatorDB

// NewDB initializes a new DB at the directory path provided.
func NewDB(dirPath string, config *kv.Config) (Database, error) {
	return kv.NewKVStore(dirPath, config)
}
