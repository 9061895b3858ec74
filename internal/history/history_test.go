package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/sussurro/sussurro/internal/history"
	"github.com/sussurro/sussurro/pkg/types"
)

func openMemStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(history.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, startedAt time.Time) types.SessionRecord {
	return types.SessionRecord{
		ID:        id,
		StartedAt: startedAt,
		Engine:    "whisper-local",
		RawText:   "raw " + id,
		FinalText: "final " + id,
	}
}

func TestStoreRecentNewestFirst(t *testing.T) {
	t.Parallel()

	s := openMemStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Append(ctx, record(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Append(%s): %v", id, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d records", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("Recent order = [%s %s], want [c b]", got[0].ID, got[1].ID)
	}
	if got[0].FinalText != "final c" {
		t.Errorf("record round trip lost data: %+v", got[0])
	}
}

func TestStoreRecentFewerThanAsked(t *testing.T) {
	t.Parallel()

	s := openMemStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, record("only", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "only" {
		t.Errorf("Recent(10) = %+v, want the single record", got)
	}
}

func TestStoreRecentEmpty(t *testing.T) {
	t.Parallel()

	s := openMemStore(t)
	got, err := s.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent on empty store = %+v", got)
	}
}

func TestStoreSameStartDistinctIDs(t *testing.T) {
	t.Parallel()

	s := openMemStore(t)
	ctx := context.Background()
	at := time.Now()

	if err := s.Append(ctx, record("one", at)); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, record("two", at)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent = %d records, want both", len(got))
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s, err := history.Open(history.Config{Path: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Append(ctx, record("kept", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = history.Open(history.Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != "kept" {
		t.Errorf("Recent after reopen = %+v, want the stored record", got)
	}
}

func TestStoreAppendCancelledContext(t *testing.T) {
	t.Parallel()

	s := openMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Append(ctx, record("x", time.Now())); err == nil {
		t.Fatal("Append with cancelled context succeeded")
	}
}
