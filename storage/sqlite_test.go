package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bigduu/chatengine/chat"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshot(id string) *chat.Snapshot {
	now := time.Now().UTC().Truncate(time.Millisecond)
	s := chat.NewSession(chat.Config{Model: "m", Provider: "p", Role: chat.RoleActor})
	snap := s.Snapshot()
	snap.ID = id
	snap.Title = "sample"
	snap.CreatedAt = now
	snap.UpdatedAt = now
	return snap
}

func TestSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := sampleSnapshot("s1")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ID != "s1" || loaded.Title != "sample" || loaded.State != chat.StateIdle {
		t.Errorf("loaded %+v", loaded)
	}
	if len(loaded.Branches) == 0 {
		t.Error("branches lost in round trip")
	}
}

func TestSaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	snap := sampleSnapshot("s1")
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap.Title = "renamed"
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("resave: %v", err)
	}

	loaded, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Title != "renamed" {
		t.Errorf("title %q", loaded.Title)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("upsert created %d rows", len(all))
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := sampleSnapshot("older")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := sampleSnapshot("newer")

	if err := store.Save(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, newer); err != nil {
		t.Fatal(err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "newer" {
		t.Errorf("list order %v", []string{all[0].ID, all[1].ID})
	}
}

func TestLoadMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load(context.Background(), "ghost"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, sampleSnapshot("s1")); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Errorf("load after delete: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Errorf("double delete: %v", err)
	}
}

func TestReopenSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Save(ctx, sampleSnapshot("s1")); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Load(ctx, "s1")
	if err != nil || loaded.ID != "s1" {
		t.Errorf("restart round trip: %v %+v", err, loaded)
	}
}
