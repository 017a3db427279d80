package memory

import (
	"context"
	"sort"
	"sync"

	"quizroom-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository. Rooms are
// deep-copied in and out so callers never share slices with the store.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]domain.Room)}
}

func (s *RoomStore) Get(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *RoomStore) Put(_ context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r.Clone()
	return nil
}

// List returns rooms ordered by creation time.
func (s *RoomStore) List(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Created.Equal(out[j].Created) {
			return out[i].Created.Before(out[j].Created)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *RoomStore) Create(_ context.Context, r domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return domain.ErrRoomExists
	}
	s.rooms[r.ID] = r.Clone()
	return nil
}

func (s *RoomStore) Update(_ context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	working := current.Clone()
	if err := fn(&working); err != nil {
		return domain.Room{}, err
	}
	s.rooms[roomID] = working.Clone()
	return working, nil
}

func (s *RoomStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(s.rooms, roomID)
	return nil
}
