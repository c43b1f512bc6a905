package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreRoomLookup(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()
	ctx := context.Background()

	room := Room{ID: "room-uuid", Code: "ABC234", CreatedAt: time.Now(), MaxPeers: 8}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateRoom(ctx, room); !errors.Is(err, ErrRoomExists) {
		t.Fatalf("second create = %v, want ErrRoomExists", err)
	}

	byID, err := store.GetRoom(ctx, "room-uuid")
	if err != nil || byID.Code != "ABC234" {
		t.Fatalf("lookup by ID: %+v, %v", byID, err)
	}
	byCode, err := store.GetRoom(ctx, "ABC234")
	if err != nil || byCode.ID != "room-uuid" {
		t.Fatalf("lookup by code: %+v, %v", byCode, err)
	}
	if _, err := store.GetRoom(ctx, "missing"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("missing room = %v, want ErrRoomNotFound", err)
	}
}

func TestMemoryStoreSignalLifecycle(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	for _, from := range []string{"alice", "carol", "alice"} {
		err := store.StoreSignal(ctx, "r1", "bob", StoredSignal{From: from, Payload: []byte("{}"), StoredAt: now})
		if err != nil {
			t.Fatal(err)
		}
	}

	pending, err := store.PendingSignals(ctx, "r1", "bob")
	if err != nil || len(pending) != 3 {
		t.Fatalf("pending = %d, %v", len(pending), err)
	}

	if err := store.ClearSignals(ctx, "r1", "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	pending, err = store.PendingSignals(ctx, "r1", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].From != "carol" {
		t.Fatalf("pending after clear = %+v", pending)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute, time.Second)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	room := Room{ID: "r1", Code: "ABC234", CreatedAt: now}
	if err := store.CreateRoom(ctx, room); err != nil {
		t.Fatal(err)
	}
	err := store.StoreSignal(ctx, "r1", "bob", StoredSignal{From: "alice", Payload: []byte("{}"), StoredAt: now})
	if err != nil {
		t.Fatal(err)
	}

	store.expire(now.Add(30 * time.Second))
	if _, err := store.GetRoom(ctx, "r1"); err != nil {
		t.Fatalf("room expired early: %v", err)
	}
	pending, _ := store.PendingSignals(ctx, "r1", "bob")
	if len(pending) != 0 {
		t.Fatalf("signal survived past its TTL")
	}

	store.expire(now.Add(2 * time.Minute))
	if _, err := store.GetRoom(ctx, "r1"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room survived past its TTL: %v", err)
	}
	if _, err := store.GetRoom(ctx, "ABC234"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("room code survived past its TTL: %v", err)
	}
}
