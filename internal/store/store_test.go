package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/erazemk/oskrba/internal/db"
)

func TestAppStateRoundTrip(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	body, err := GetAppState(ctx, database)
	if err != nil {
		t.Fatalf("GetAppState: %v", err)
	}
	if body != nil {
		t.Fatalf("expected no state, got %s", body)
	}

	if err := PutAppState(ctx, database, json.RawMessage(`{"items":[]}`)); err != nil {
		t.Fatalf("PutAppState: %v", err)
	}
	if err := PutAppState(ctx, database, json.RawMessage(`{"items":[{"id":"a"}]}`)); err != nil {
		t.Fatalf("second PutAppState: %v", err)
	}

	body, err = GetAppState(ctx, database)
	if err != nil {
		t.Fatalf("GetAppState: %v", err)
	}
	if string(body) != `{"items":[{"id":"a"}]}` {
		t.Errorf("expected latest body, got %s", body)
	}
}

func TestDeleteAppStateIdempotent(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if err := DeleteAppState(ctx, database); err != nil {
		t.Fatalf("DeleteAppState on empty table: %v", err)
	}

	PutAppState(ctx, database, json.RawMessage(`{}`))
	if err := DeleteAppState(ctx, database); err != nil {
		t.Fatalf("DeleteAppState: %v", err)
	}

	body, _ := GetAppState(ctx, database)
	if body != nil {
		t.Errorf("expected state to be gone, got %s", body)
	}
}

func TestKeyValue(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	_, ok, err := GetValue(ctx, database, "missing")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if ok {
		t.Error("expected missing key")
	}

	SetValue(ctx, database, "b", "1")
	SetValue(ctx, database, "a", "2")
	SetValue(ctx, database, "b", "3")

	v, ok, _ := GetValue(ctx, database, "b")
	if !ok || v != "3" {
		t.Errorf("expected b=3, got %q (%v)", v, ok)
	}

	if v, _, _ := GetValue(ctx, database, "a"); v != "2" {
		t.Errorf("expected a=2, got %q", v)
	}

	removed, _ := DeleteValue(ctx, database, "b")
	if !removed {
		t.Error("expected b to be removed")
	}
	removed, _ = DeleteValue(ctx, database, "b")
	if removed {
		t.Error("expected second delete to remove nothing")
	}
}

func TestChangeFeed(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	last, err := LastChangeSeq(ctx, database)
	if err != nil || last != 0 {
		t.Fatalf("LastChangeSeq on empty feed = %d, %v", last, err)
	}

	old := time.Now().Add(-time.Hour)
	first, err := AppendChange(ctx, database, KVChange{Key: "k", NewValue: "v1", Origin: "a", At: old})
	if err != nil {
		t.Fatalf("AppendChange: %v", err)
	}
	second, _ := AppendChange(ctx, database, KVChange{Key: "k", OldValue: "v1", Removed: true, Origin: "b"})
	if second <= first {
		t.Fatalf("sequence did not advance: %d then %d", first, second)
	}

	changes, err := ChangesSince(ctx, database, first)
	if err != nil {
		t.Fatalf("ChangesSince: %v", err)
	}
	if len(changes) != 1 || !changes[0].Removed || changes[0].Origin != "b" || changes[0].OldValue != "v1" {
		t.Errorf("unexpected changes %+v", changes)
	}

	if err := PruneChanges(ctx, database, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("PruneChanges: %v", err)
	}
	changes, _ = ChangesSince(ctx, database, 0)
	if len(changes) != 1 || changes[0].Seq != second {
		t.Errorf("expected only the recent change to survive, got %+v", changes)
	}
	if last, _ := LastChangeSeq(ctx, database); last != second {
		t.Errorf("LastChangeSeq = %d, want %d", last, second)
	}
}

func TestGetJWTSecretStable(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	if err != nil {
		t.Fatalf("GetJWTSecret: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(first))
	}

	second, _ := GetJWTSecret(ctx, database)
	if first != second {
		t.Error("expected the stored secret to be reused")
	}
}
