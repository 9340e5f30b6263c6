// Package kv defines a bolt-db, key-value store implementation of the
// validator database interface for the proof-of-access runtime.
package kv

import (
	"os"
	"path/filepath"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombolt "github.com/prysmaticlabs/prombbolt"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var log = logrus.WithField("prefix", "db")

// databaseFileName is the file name of the validator database.
const databaseFileName = "poavalidator.db"

// Config represents store's config object.
type Config struct {
	InitialMMapSize int
}

// Store defines an implementation of the validator database interface using
// BoltDB as the underlying persistent kv-store.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore initializes a new boltDB key-value store at the directory path
// specified, creates the kv-buckets based on the schema, and stores an open
// connection db object as a property of the Store struct.
func NewKVStore(dirPath string, config *Config) (*Store, error) {
	hasDir, err := fileExists(dirPath)
	if err != nil {
		return nil, err
	}
	if !hasDir {
		if err := os.MkdirAll(dirPath, params.ValidatorIoConfig().ReadWriteExecutePermissions); err != nil {
			return nil, err
		}
	}
	datafile := filepath.Join(dirPath, databaseFileName)
	initialMMapSize := 0
	if config != nil {
		initialMMapSize = config.InitialMMapSize
	}
	boltDB, err := bolt.Open(
		datafile,
		params.ValidatorIoConfig().ReadWritePermissions,
		&bolt.Options{
			Timeout:         params.ValidatorIoConfig().BoltTimeout,
			InitialMmapSize: initialMMapSize,
		},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	kv := &Store{db: boltDB, databasePath: dirPath}

	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(
			tx,
			agentsBucket,
			agentBlacklistBucket,
			blobsBucket,
			refsBucket,
			contractsBucket,
			contractCIDIndicesBucket,
			contractEventsBucket,
			challengesBucket,
			challengeAgentIndicesBucket,
			auditRecordsBucket,
			auditAccountIndicesBucket,
		)
	}); err != nil {
		return nil, err
	}
	err = prometheus.Register(createBoltCollector(kv.db))
	return kv, err
}

// Close closes the underlying boltdb database.
func (s *Store) Close() error {
	prometheus.Unregister(createBoltCollector(s.db))
	return s.db.Close()
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	return s.db.Update(fn)
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	return s.db.View(fn)
}

// ClearDB removes any previously stored data at the configured data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(createBoltCollector(s.db))
	return os.Remove(filepath.Join(s.databasePath, databaseFileName))
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// Size returns the db size in bytes.
func (s *Store) Size() (int64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// createBoltCollector returns a prometheus collector specifically configured for boltdb.
func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombolt.New("boltDB", db)
}

func fileExists(filename string) (bool, error) {
	info, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info != nil, nil
}
