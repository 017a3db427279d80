package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/room"
)

func TestRoomStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), time.Minute)
	r := room.New("ABCDEF", "host", nil, time.Unix(1700000000, 0))

	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:room:ABCDEF") {
		t.Fatalf("expected redis key to be set")
	}
	if err := store.Create(ctx, r); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected room exists, got %v", err)
	}

	got, err := store.Get(ctx, "ABCDEF")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Host != "host" || got.CurrentQuestion != -1 || len(got.Questions) != 3 {
		t.Fatalf("room did not round-trip: %+v", got)
	}

	if err := store.Delete(ctx, "ABCDEF"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("quiz:room:ABCDEF") {
		t.Fatalf("expected redis key to be removed")
	}
	if err := store.Delete(ctx, "ABCDEF"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoomStoreUpdateKeepsJoinOrder(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), 0)
	_ = store.Put(ctx, room.New("ABCDEF", "host", nil, time.Now()))

	for _, id := range []string{"p3", "p1", "p2"} {
		id := id
		if _, err := store.Update(ctx, "ABCDEF", func(r *domain.Room) error {
			return room.Join(r, id, id)
		}); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	got, _ := store.Get(ctx, "ABCDEF")
	for i, want := range []string{"p3", "p1", "p2"} {
		if got.Participants[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got.Participants[i].ID)
		}
	}

	boom := errors.New("boom")
	if _, err := store.Update(ctx, "ABCDEF", func(r *domain.Room) error {
		r.Status = domain.StatusFinished
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	got, _ = store.Get(ctx, "ABCDEF")
	if got.Status != domain.StatusWaiting {
		t.Fatalf("failed update must not persist")
	}

	if _, err := store.Update(ctx, "NOPE42", func(*domain.Room) error { return nil }); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoomStoreConcurrentUpdates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), time.Minute)
	_ = store.Put(ctx, room.New("ABCDEF", "host", nil, time.Now()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Update(ctx, "ABCDEF", func(r *domain.Room) error {
				return room.Join(r, fmt.Sprintf("p%d", i), "Player")
			}); err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := store.Get(ctx, "ABCDEF")
	if len(got.Participants) != 8 {
		t.Fatalf("expected 8 participants, got %d", len(got.Participants))
	}
}

func TestRoomStoreListPrunesExpired(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRoomStore(newClient(mr), time.Minute)
	base := time.Unix(1700000000, 0)
	_ = store.Create(ctx, room.New("BBBBBB", "h", nil, base.Add(time.Second)))
	_ = store.Create(ctx, room.New("AAAAAA", "h", nil, base))

	rooms, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "AAAAAA" {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}

	mr.FastForward(2 * time.Minute)
	rooms, _ = store.List(ctx)
	if len(rooms) != 0 {
		t.Fatalf("expected expired rooms to vanish, got %d", len(rooms))
	}
	if members, _ := mr.Members(roomIndexKey); len(members) != 0 {
		t.Fatalf("expected index pruned, got %v", members)
	}
}
