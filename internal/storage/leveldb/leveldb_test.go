package leveldb

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"ctcbeam/internal/domain/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage, err := NewStorage(log, filepath.Join(t.TempDir(), "decode.db"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() {
		storage.StopWorkers()
		storage.Close()
	})
	return storage
}

func TestRecordAndGetHistory(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	entry := &models.HistoryEntry{
		ID:        NextHistoryID(1, time.Unix(0, 0)),
		TopScore:  -3.5,
		NumTokens: 4,
		NumBeams:  10,
		ElapsedMs: 12.5,
		DecodedAt: time.Unix(0, 0).UTC().Format(time.RFC3339),
	}
	if err := storage.RecordHistory(ctx, entry); err != nil {
		t.Fatalf("RecordHistory: %v", err)
	}
	storage.StopWorkers()

	got, err := storage.GetHistory(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if got.TopScore != entry.TopScore || got.NumTokens != entry.NumTokens {
		t.Fatalf("expected round-tripped entry %+v, got %+v", entry, got)
	}
}

func TestGetHistoryMissingReturnsErrNotFound(t *testing.T) {
	storage := newTestStorage(t)
	if _, err := storage.GetHistory(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListHistoryReturnsAllRecorded(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for i := int64(0); i < 3; i++ {
		entry := &models.HistoryEntry{
			ID:       NextHistoryID(i, time.Unix(i, 0)),
			NumBeams: int(i),
		}
		if err := storage.RecordHistory(ctx, entry); err != nil {
			t.Fatalf("RecordHistory %d: %v", i, err)
		}
	}
	storage.StopWorkers()

	entries, err := storage.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestPutAndGetArtifactRoundTrips(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	blob := []byte{0x01, 0x02, 0x03, 0x04}
	if err := storage.PutArtifact(ctx, "hash-abc", blob); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}

	got, err := storage.GetArtifact(ctx, "hash-abc")
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if len(got) != len(blob) {
		t.Fatalf("expected blob of length %d, got %d", len(blob), len(got))
	}
	for i := range blob {
		if got[i] != blob[i] {
			t.Fatalf("blob mismatch at %d: want %x got %x", i, blob[i], got[i])
		}
	}
}

func TestDeleteArtifactRemovesIt(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.PutArtifact(ctx, "hash-xyz", []byte("payload")); err != nil {
		t.Fatalf("PutArtifact: %v", err)
	}
	if err := storage.DeleteArtifact(ctx, "hash-xyz"); err != nil {
		t.Fatalf("DeleteArtifact: %v", err)
	}
	if _, err := storage.GetArtifact(ctx, "hash-xyz"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
