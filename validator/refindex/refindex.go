// Package refindex maintains the mapping from a content ID to its ordered
// sub-block list. Lists are discovered lazily from the content store, stored
// immutably in the database and served through an in-memory LRU, since the
// proof walk needs the identical ordering on every lookup forever.
package refindex

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/iface"
	"github.com/Dhenz14/HivePoA-sub000/validator/db/kv"
	"github.com/Dhenz14/HivePoA-sub000/validator/ipfs"
)

var log = logrus.WithField("prefix", "refindex")

var (
	refCacheHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ref_index_cache_hit",
		Help: "The number of sub-block list lookups served from the cache.",
	})
	refCacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ref_index_cache_miss",
		Help: "The number of sub-block list lookups that missed the cache.",
	})
	refSyncTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ref_index_syncs_total",
		Help: "The number of sub-block lists synced from the content store.",
	})
)

// syncWorkers bounds the content store fan-out during the startup sync.
const syncWorkers = 8

// cachedRefs carries the load time so stale entries are re-read from the
// database rather than trusted indefinitely.
type cachedRefs struct {
	refs     []string
	cachedAt time.Time
}

// Index resolves sub-block lists through a read-through LRU over the
// database, asking the content store for lists it has never seen.
type Index struct {
	db    iface.ValidatorDB
	store ipfs.ContentStore
	cache *lru.Cache
}

// New builds an index sized by the chain config.
func New(database iface.ValidatorDB, store ipfs.ContentStore) (*Index, error) {
	cache, err := lru.New(int(params.PoAConfig().RefIndexCacheSize))
	if err != nil {
		return nil, errors.Wrap(err, "could not create ref cache")
	}
	return &Index{db: database, store: store, cache: cache}, nil
}

func cacheTTL() time.Duration {
	return time.Duration(params.PoAConfig().RefIndexTTLSeconds) * time.Second
}

// Get returns the stored sub-block list for cid. Unknown content IDs surface
// the database's not-found error; callers wanting discovery use SyncIfMissing.
func (ix *Index) Get(ctx context.Context, cid string) ([]string, error) {
	if entry, ok := ix.cache.Get(cid); ok {
		cached, ok := entry.(*cachedRefs)
		if ok && time.Since(cached.cachedAt) < cacheTTL() {
			refCacheHit.Inc()
			return cached.refs, nil
		}
		ix.cache.Remove(cid)
	}
	refCacheMiss.Inc()
	refs, err := ix.db.Refs(ctx, cid)
	if err != nil {
		return nil, err
	}
	ix.cache.Add(cid, &cachedRefs{refs: refs, cachedAt: time.Now()})
	return refs, nil
}

// Put persists a sub-block list. Losing a save race is not an error: the
// list is immutable, so the winner wrote the same data and this call serves
// the stored copy.
func (ix *Index) Put(ctx context.Context, cid string, refs []string) error {
	if err := ix.db.SaveRefs(ctx, cid, refs); err != nil {
		if !errors.Is(err, kv.ErrRefsExist) {
			return err
		}
		stored, err := ix.db.Refs(ctx, cid)
		if err != nil {
			return err
		}
		refs = stored
	}
	ix.cache.Add(cid, &cachedRefs{refs: refs, cachedAt: time.Now()})
	return nil
}

// SyncIfMissing returns the sub-block list for cid, discovering and
// persisting it from the content store on first sight.
func (ix *Index) SyncIfMissing(ctx context.Context, cid string) ([]string, error) {
	refs, err := ix.Get(ctx, cid)
	if err == nil {
		return refs, nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}
	refs, err = ix.store.RecursiveRefs(ctx, cid)
	if err != nil {
		return nil, errors.Wrapf(err, "could not enumerate sub-blocks of %s", cid)
	}
	if err := ix.Put(ctx, cid, refs); err != nil {
		return nil, err
	}
	refSyncTotal.Inc()
	return refs, nil
}

// SyncAll warms the index for every PoA-enabled blob. Individual discovery
// failures are logged and skipped; a blob that stays unknown simply syncs on
// its first challenge instead.
func (ix *Index) SyncAll(ctx context.Context) error {
	blobs, err := ix.db.PoABlobs(ctx)
	if err != nil {
		return errors.Wrap(err, "could not load tracked blobs")
	}
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan string)
	g.Go(func() error {
		defer close(jobs)
		for _, b := range blobs {
			select {
			case jobs <- b.CID:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	var failed uint64
	for i := 0; i < syncWorkers; i++ {
		g.Go(func() error {
			for cid := range jobs {
				if _, err := ix.SyncIfMissing(gctx, cid); err != nil {
					atomic.AddUint64(&failed, 1)
					log.WithError(err).WithField("cid", cid).Warn("Could not sync sub-block refs")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := atomic.LoadUint64(&failed); n > 0 {
		log.WithFields(logrus.Fields{
			"failed": n,
			"total":  len(blobs),
		}).Warn("Sub-block ref sync completed with failures")
	} else {
		log.WithField("total", len(blobs)).Info("Sub-block ref sync complete")
	}
	return nil
}
