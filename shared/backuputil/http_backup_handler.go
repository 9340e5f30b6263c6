// Package backuputil contains the http handler that triggers database
// backups on demand.
package backuputil

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Exporter writes a point-in-time copy of the database to a backup directory.
type Exporter interface {
	Backup(ctx context.Context, outputDir string) error
}

// BackupHandler accepts requests to initiate a new database backup.
func BackupHandler(bk Exporter, outputDir string) func(http.ResponseWriter, *http.Request) {
	log := logrus.WithField("prefix", "db")

	return func(w http.ResponseWriter, _ *http.Request) {
		log.Debug("Creating database backup from HTTP webhook")

		if err := bk.Backup(context.Background(), outputDir); err != nil {
			log.WithError(err).Error("Failed to create backup")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, err := fmt.Fprint(w, "OK")
		if err != nil {
			log.WithError(err).Error("Failed to write OK")
		}
	}
}
