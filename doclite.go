// Package storage is the outer shell around the page-addressable storage
// and durability core in internal/storage: it turns a connection string or
// settings file into a bound DiskService and wires a default zap logger
// around it.
package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/minidb/storage/internal/pkg/logging"
	internalstorage "github.com/minidb/storage/internal/storage"
)

// DB is a thin, process-wide handle around an opened DiskService plus the
// logger it was opened with.
type DB struct {
	Logger *zap.Logger

	disk *internalstorage.DiskService
}

// failureHandler adapts a DB's logger into the storage core's
// FailureHandler collaborator interface, for async log-writer failures
// that occur with no caller on the stack to return an error to.
type failureHandler struct {
	logger *zap.Logger
}

func (h *failureHandler) Handle(err error) {
	h.logger.Error("asynchronous write failed", zap.Error(err))
}

// Open parses connStr and opens (or creates) the underlying database
// file, building a zap logger at the level the connection string
// requested.
func Open(connStr string) (*DB, error) {
	config, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(config)
}

// OpenWithConfig opens a database using an already-parsed or
// programmatically-built ConnectionConfig.
func OpenWithConfig(config *ConnectionConfig) (*DB, error) {
	zapConfig := logging.DefaultConfig()
	zapConfig.Level = config.GetZapLevel()
	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	disk, err := internalstorage.Open(logger, config.toStorageSettings(), &failureHandler{logger: logger})
	if err != nil {
		return nil, err
	}

	return &DB{Logger: logger, disk: disk}, nil
}

// Disk exposes the underlying DiskService for callers that need direct
// page-level access (e.g. a future query engine layered on top).
func (db *DB) Disk() *internalstorage.DiskService {
	return db.disk
}

// Close waits for pending asynchronous writes, closes both files and
// flushes the logger.
func (db *DB) Close() error {
	err := db.disk.Close()
	_ = db.Logger.Sync()
	return err
}
