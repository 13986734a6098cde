package trace

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avesely/opsdeck/internal/domain"
	"github.com/avesely/opsdeck/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return repo
}

func testRecord(id string) domain.TraceRecord {
	return domain.TraceRecord{
		TraceID:          id,
		SessionID:        "tab-1",
		Model:            "test-model",
		PromptTokens:     5,
		CompletionTokens: 9,
		LatencyMS:        42,
		Status:           domain.TraceStatusSuccess,
		UserQueryPreview: "hello",
		ResponsePreview:  "world",
		CreatedAt:        time.Now(),
	}
}

func TestRecorderPersistsAsynchronously(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	rec := NewRecorder(repo, 10)

	rec.Record(testRecord("t1"))
	rec.Record(testRecord("t2"))
	rec.Close() // flushes the queue

	traces, err := repo.ListTraces(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(traces) != 2 {
		t.Fatalf("traces = %d, want 2", len(traces))
	}
}

func TestRecorderDropsOnOverflowWithoutBlocking(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	rec := NewRecorder(repo, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			rec.Record(testRecord("burst"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
	rec.Close()
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(newTestRepo(t), 10)
	rec.Close()
	rec.Close()
}

func TestRetentionSweepDeletesOldTraces(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	ctx := context.Background()

	old := testRecord("old")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	if err := repo.SaveTrace(ctx, &old); err != nil {
		t.Fatal(err)
	}
	fresh := testRecord("fresh")
	if err := repo.SaveTrace(ctx, &fresh); err != nil {
		t.Fatal(err)
	}

	sweepOnce(ctx, repo, 24*time.Hour)

	traces, err := repo.ListTraces(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(traces) != 1 || traces[0].TraceID != "fresh" {
		t.Fatalf("traces = %+v", traces)
	}
}
