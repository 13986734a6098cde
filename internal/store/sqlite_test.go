package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avesely/opsdeck/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
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

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetUser(ctx, "anon_missing")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != nil {
		t.Fatalf("missing user = %+v, want nil", got)
	}

	now := time.Now().Truncate(time.Second)
	user := &domain.User{
		UserID:     "anon_abc",
		Username:   "operator-0000abcd",
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.UpsertUser(ctx, user); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	got, err = repo.GetUser(ctx, "anon_abc")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil || got.Username != "operator-0000abcd" {
		t.Fatalf("user = %+v", got)
	}

	later := now.Add(time.Hour)
	if err := repo.UpdateLastSeen(ctx, "anon_abc", later); err != nil {
		t.Fatalf("UpdateLastSeen: %v", err)
	}
	got, err = repo.GetUser(ctx, "anon_abc")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Errorf("last seen = %v, want %v", got.LastSeenAt, later)
	}
}

func TestTraceRoundTripAndRetention(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Second)

	save := func(id, session string, age time.Duration) {
		t.Helper()
		err := repo.SaveTrace(ctx, &domain.TraceRecord{
			TraceID:          id,
			SessionID:        session,
			Model:            "test-model",
			PromptTokens:     10,
			CompletionTokens: 20,
			LatencyMS:        150,
			Status:           domain.TraceStatusSuccess,
			UserQueryPreview: "what is running?",
			ResponsePreview:  "two containers",
			CreatedAt:        base.Add(-age),
		})
		if err != nil {
			t.Fatalf("SaveTrace(%s): %v", id, err)
		}
	}

	save("t1", "tab-a", 48*time.Hour)
	save("t2", "tab-a", time.Hour)
	save("t3", "tab-b", time.Minute)

	all, err := repo.ListTraces(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all traces = %d, want 3", len(all))
	}
	if all[0].TraceID != "t3" {
		t.Errorf("newest first expected, got %q", all[0].TraceID)
	}

	tabA, err := repo.ListTraces(ctx, "tab-a", 10)
	if err != nil {
		t.Fatalf("ListTraces(tab-a): %v", err)
	}
	if len(tabA) != 2 {
		t.Fatalf("tab-a traces = %d, want 2", len(tabA))
	}

	deleted, err := repo.DeleteTracesBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteTracesBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	remaining, err := repo.ListTraces(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListTraces: %v", err)
	}
	if len(remaining) != 2 {
		t.Errorf("remaining = %d, want 2", len(remaining))
	}
}
