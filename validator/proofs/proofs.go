// Package proofs implements the deterministic proof-of-access computation
// shared by the validator and every storage agent. Both sides run the same
// salted walk over a blob's sub-blocks and must arrive at the same digest;
// the validator compares its local result against the agent's answer.
package proofs

import (
	"context"
	"crypto/rand"

	"github.com/Dhenz14/HivePoA-sub000/shared/hashutil"
	"github.com/pkg/errors"
)

// FetchFunc returns the raw bytes behind a single content ID. The walk calls
// it once per visited sub-block, and once with the root CID when a blob has
// no sub-blocks at all.
type FetchFunc func(ctx context.Context, cid string) ([]byte, error)

const saltEntropyBytes = 32

// RandomSalt returns a fresh challenge salt: the hex digest of 32 bytes of
// CSPRNG output. Salts are never reused across challenges.
func RandomSalt() (string, error) {
	buf := make([]byte, saltEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "could not read entropy for salt")
	}
	return hashutil.HexDigest(buf), nil
}

// SaltWithBlockDigest returns a salt bound to the latest ledger block digest.
// Mixing the digest in stops agents from precomputing answers ahead of time:
// the salt cannot exist before the block it commits to.
func SaltWithBlockDigest(blockDigest string) (string, error) {
	buf := make([]byte, saltEntropyBytes, saltEntropyBytes+len(blockDigest))
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "could not read entropy for salt")
	}
	return hashutil.HexDigest(append(buf, []byte(blockDigest)...)), nil
}

// IndexFromHash reduces a hex digest to a step size in [0, n). Lists of seven
// or fewer sub-blocks always step by one, so short walks cover every block
// from the starting seed onward.
func IndexFromHash(h string, n int) int {
	if n <= 7 {
		return 1
	}
	x := uint32(2166136261)
	for i := 0; i < len(h); i++ {
		x ^= uint32(h[i])
		x *= 16777619
	}
	return int(x % uint32(n))
}

// ProofHash runs the salted walk for one challenge and returns the proof
// digest. The walk starts at IndexFromHash(salt, n) and visits sub-blocks
// until it steps past the end of the list; each visited block contributes the
// hex digest of its bytes concatenated with the salt, and the next step is
// derived from the salt plus everything accumulated so far. A step of zero
// revisits the same block, which grows the accumulator and reshuffles the
// following step. A blob without sub-blocks degenerates to the digest of the
// whole blob concatenated with the salt.
//
// Any fetch failure aborts the walk with an empty string; callers treat that
// as a verification failure rather than an answer.
func ProofHash(ctx context.Context, salt, cid string, subBlocks []string, fetch FetchFunc) (string, error) {
	n := len(subBlocks)
	if n == 0 {
		blob, err := fetch(ctx, cid)
		if err != nil {
			return "", errors.Wrapf(err, "could not fetch blob %s", cid)
		}
		return saltedDigest(blob, salt), nil
	}

	acc := ""
	for seed := IndexFromHash(salt, n); seed < n; seed += IndexFromHash(salt+acc, n) {
		block, err := fetch(ctx, subBlocks[seed])
		if err != nil {
			return "", errors.Wrapf(err, "could not fetch sub-block %s of %s", subBlocks[seed], cid)
		}
		acc += saltedDigest(block, salt)
	}
	return hashutil.HexDigest([]byte(acc)), nil
}

// saltedDigest hashes data followed by the salt's bytes without mutating the
// caller's slice.
func saltedDigest(data []byte, salt string) string {
	buf := make([]byte, 0, len(data)+len(salt))
	buf = append(buf, data...)
	buf = append(buf, salt...)
	return hashutil.HexDigest(buf)
}
