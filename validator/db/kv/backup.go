package kv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Dhenz14/HivePoA-sub000/shared/params"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

const backupsDirectoryName = "backups"

// Backup the database to the datadir backup directory, or to outputDir when
// one is given.
// Example for backup: $DATADIR/backups/poavalidator_1029050800.backup
func (s *Store) Backup(ctx context.Context, outputDir string) error {
	ctx, span := trace.StartSpan(ctx, "ValidatorDB.Backup")
	defer span.End()

	backupsDir := filepath.Join(s.databasePath, backupsDirectoryName)
	if outputDir != "" {
		backupsDir = filepath.Join(outputDir, backupsDirectoryName)
	}
	// Ensure the backups directory exists.
	if err := os.MkdirAll(backupsDir, params.ValidatorIoConfig().ReadWriteExecutePermissions); err != nil {
		return err
	}
	backupPath := filepath.Join(backupsDir, fmt.Sprintf("poavalidator_%d.backup", time.Now().Unix()))
	log.WithField("backup", backupPath).Info("Writing backup database")
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupPath, params.ValidatorIoConfig().ReadWritePermissions)
	})
}
