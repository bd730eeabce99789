// Package leveldb persists decode history and caches trained LM and
// lexicon artifacts so a restarted process does not have to retrain or
// rebuild them from scratch.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"ctcbeam/internal/domain/models"
	"ctcbeam/internal/lib/logger/sl"
)

// Storage wraps a single leveldb handle: history entries are buffered
// through writeChan and flushed in batches, while artifact blobs (already
// gob-encoded by their owning package) are written synchronously since
// they are large, infrequent, and the caller wants to know immediately
// whether the write succeeded.
type Storage struct {
	log       *slog.Logger
	db        *leveldb.DB
	writeChan chan *models.HistoryEntry
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

var ErrNotFound = errors.New("entry not found")

const (
	bufferSize   = 1000
	flushTimeout = 2 * time.Second

	historyPrefix  = "history:"
	artifactPrefix = "artifact:"
)

func NewStorage(log *slog.Logger, path string) (*Storage, error) {
	const op = "storage.leveldb.New"

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	storage := &Storage{
		log:       log,
		db:        db,
		writeChan: make(chan *models.HistoryEntry, bufferSize*2),
	}

	storage.wg.Add(1)
	go storage.writeWorker()

	return storage, nil
}

func (s *Storage) writeWorker() {
	defer s.wg.Done()

	batch := new(leveldb.Batch)
	ticker := time.NewTicker(flushTimeout)
	defer ticker.Stop()

	flush := func() {
		if batch.Len() == 0 {
			return
		}
		if err := s.db.Write(batch, nil); err != nil {
			s.log.Error("failed to write history batch", "error", sl.Err(err))
		}
		batch = new(leveldb.Batch)
	}

	for {
		select {
		case entry, ok := <-s.writeChan:
			if !ok {
				flush()
				return
			}

			data, err := json.Marshal(entry)
			if err != nil {
				s.log.Error("failed to marshal history entry", "error", sl.Err(err))
				continue
			}
			batch.Put([]byte(historyPrefix+entry.ID), data)

			if batch.Len() >= bufferSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// GetDatabaseStats reports the underlying leveldb engine's internal stats
// string, useful for the inspector's diagnostics panel.
func (s *Storage) GetDatabaseStats(ctx context.Context) (string, error) {
	return s.db.GetProperty("leveldb.stats")
}

// RecordHistory enqueues a completed decode's summary for buffered,
// asynchronous persistence. It blocks only long enough to hand the entry
// to the write worker, or until ctx is cancelled.
func (s *Storage) RecordHistory(ctx context.Context, entry *models.HistoryEntry) error {
	select {
	case s.writeChan <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetHistory retrieves a single previously recorded decode summary by ID.
func (s *Storage) GetHistory(ctx context.Context, id string) (*models.HistoryEntry, error) {
	data, err := s.db.Get([]byte(historyPrefix+id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entry models.HistoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListHistory returns every recorded decode summary in key order (leveldb
// iterates keys lexically; IDs built by NextHistoryID sort oldest first).
func (s *Storage) ListHistory(ctx context.Context) ([]*models.HistoryEntry, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var entries []*models.HistoryEntry
	for iter.Next() {
		key := iter.Key()
		if len(key) < len(historyPrefix) || string(key[:len(historyPrefix)]) != historyPrefix {
			continue
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, iter.Error()
}

// PutArtifact stores an opaque, already-encoded blob (a gob-serialized
// *lm.NgramModel or *lexicon.FST) under a content hash so
// a second process configured with the same corpus never retrains it.
func (s *Storage) PutArtifact(ctx context.Context, contentHash string, blob []byte) error {
	return s.db.Put([]byte(artifactPrefix+contentHash), blob, nil)
}

// GetArtifact retrieves a previously cached artifact blob by content hash.
func (s *Storage) GetArtifact(ctx context.Context, contentHash string) ([]byte, error) {
	data, err := s.db.Get([]byte(artifactPrefix+contentHash), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// DeleteArtifact evicts a cached artifact, e.g. after its source corpus
// has changed and the content hash it was stored under is stale.
func (s *Storage) DeleteArtifact(ctx context.Context, contentHash string) error {
	return s.db.Delete([]byte(artifactPrefix+contentHash), nil)
}

// NextHistoryID builds a lexically time-sortable key from a decode
// sequence counter, so ListHistory's iteration order matches completion
// order without needing a secondary index.
func NextHistoryID(seq int64, decodedAt time.Time) string {
	// Fixed-width nanoseconds: time.RFC3339Nano trims trailing zeros, which
	// would break lexical ordering.
	return decodedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00") + ":" + strconv.FormatInt(seq, 10)
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// StopWorkers flushes buffered history writes and stops the write worker.
// Calls after the first are no-ops.
func (s *Storage) StopWorkers() {
	s.stopOnce.Do(func() {
		close(s.writeChan)
		s.wg.Wait()
	})
}
