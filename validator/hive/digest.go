package hive

import (
	"strconv"
	"sync"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/hashutil"
)

// digestCache holds the most recently observed head block digest. One
// background task writes it; challenge construction reads it and tolerates a
// value up to one refresh window old.
type digestCache struct {
	lock    sync.RWMutex
	digest  string
	updated time.Time
}

func (c *digestCache) set(digest string, now time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.digest = digest
	c.updated = now
}

func (c *digestCache) get() (string, time.Time) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.digest, c.updated
}

// FallbackDigest derives a salt anchor from the wall clock when the ledger is
// unreachable. Bucketing by the refresh window keeps every computation within
// the same window on the same digest, preserving challenge determinism during
// an outage.
func FallbackDigest(now time.Time, window time.Duration) string {
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	bucket := now.Unix() / seconds
	return hashutil.HexDigest([]byte(strconv.FormatInt(bucket, 10)))
}
