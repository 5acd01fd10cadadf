package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nydus-hq/nydus/pkg/policy"
)

func sampleRecord(id string, finished time.Time) *MatchRecord {
	return &MatchRecord{
		MatchID:    id,
		MapName:    "AbyssalReef",
		StartedAt:  finished.Add(-10 * time.Minute),
		FinishedAt: finished,
		EndReason:  EndNormal,
		Participants: []ParticipantResult{
			{Slot: 0, Outcome: "victory", Budget: policy.Snapshot{Calls: 120, Actions: 80}},
			{Slot: 1, Outcome: "defeat", Budget: policy.Snapshot{Calls: 95, Actions: 60}},
		},
	}
}

func testStorage(t *testing.T, store Storage) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing record, got %v", err)
	}

	rec := sampleRecord("m-1", now)
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(ctx, "m-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MapName != "AbyssalReef" || got.EndReason != EndNormal {
		t.Errorf("Unexpected record %+v", got)
	}
	if len(got.Participants) != 2 || got.Participants[0].Outcome != "victory" {
		t.Errorf("Unexpected participants %+v", got.Participants)
	}
	if got.Participants[0].Budget.Calls != 120 {
		t.Errorf("Budget snapshot lost: %+v", got.Participants[0].Budget)
	}

	if err := store.Save(ctx, sampleRecord("m-2", now.Add(time.Hour))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	list, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(list))
	}
	if list[0].MatchID != "m-2" {
		t.Errorf("Expected newest first, got %s", list[0].MatchID)
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List limited failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected 1 record with limit, got %d", len(limited))
	}
}

func TestMemoryStorage(t *testing.T) {
	store := NewMemoryStorage()
	defer store.Close()
	testStorage(t, store)
}

func TestSQLiteStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	defer store.Close()
	testStorage(t, store)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()
	now := time.Now()

	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	if err := store.Save(ctx, sampleRecord("m-persist", now)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Get(ctx, "m-persist"); err != nil {
		t.Errorf("Record lost across reopen: %v", err)
	}
}

func TestEndReason_Abnormal(t *testing.T) {
	if EndNormal.Abnormal() || EndDisconnect.Abnormal() {
		t.Error("Normal/disconnect ends must not be abnormal")
	}
	if !EndCrash.Abnormal() || !EndTerminated.Abnormal() {
		t.Error("Crash/terminated ends must be abnormal")
	}
}
