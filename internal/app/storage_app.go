package app

import (
	"log/slog"

	"ctcbeam/internal/storage/leveldb"
)

// StorageApp owns the process's single leveldb handle and its graceful
// shutdown, kept separate from App so a caller that only needs storage
// (e.g. an offline artifact-cache inspection tool) does not have to build
// a full decoder.
type StorageApp struct {
	storage *leveldb.Storage
}

func NewStorageApp(log *slog.Logger, storagePath string) (*StorageApp, error) {
	storage, err := leveldb.NewStorage(log, storagePath)
	if err != nil {
		return nil, err
	}
	return &StorageApp{storage: storage}, nil
}

func (s *StorageApp) Stop() error {
	s.storage.StopWorkers()
	return s.storage.Close()
}

func (s *StorageApp) Storage() *leveldb.Storage {
	return s.storage
}
