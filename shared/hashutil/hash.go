// Package hashutil includes all hash-function related helpers for the
// validator. The proof-of-access protocol pins SHA-256; every digest that
// crosses the wire is the lowercase hex form produced here.
package hashutil

import (
	"encoding/hex"

	"github.com/minio/sha256-simd"
)

// Hash defines a function that returns the sha256 checksum of the data passed in.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HexDigest returns the lowercase hex encoding of the sha256 checksum of the
// data passed in.
func HexDigest(data []byte) string {
	h := Hash(data)
	return hex.EncodeToString(h[:])
}
