package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"quizroom-service/internal/domain"
)

const (
	roomIndexKey  = "quiz:rooms"
	maxTxAttempts = 16
)

// RoomStore keeps each room as a JSON document so several instances can share state.
// Updates run inside WATCH/MULTI so concurrent writers retry instead of overwriting
// each other. Every write refreshes the key TTL, which doubles as idle expiry.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (domain.Room, error) {
	data, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return decodeRoom(data)
}

func (s *RoomStore) Put(ctx context.Context, r domain.Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(r.ID), data, s.ttl)
	pipe.SAdd(ctx, roomIndexKey, r.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put room %s: %w", r.ID, err)
	}
	return nil
}

// List returns rooms ordered by creation time. Index entries whose room key has
// expired are pruned on the way.
func (s *RoomStore) List(ctx context.Context) ([]domain.Room, error) {
	ids, err := s.client.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Room{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]domain.Room, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		r, err := decodeRoom([]byte(raw))
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, roomIndexKey, stale...).Err()
	}
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].Created.Equal(rooms[j].Created) {
			return rooms[i].Created.Before(rooms[j].Created)
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms, nil
}

func (s *RoomStore) Create(ctx context.Context, r domain.Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(r.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create room %s: %w", r.ID, err)
	}
	if !ok {
		return domain.ErrRoomExists
	}
	return s.client.SAdd(ctx, roomIndexKey, r.ID).Err()
}

func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error) {
	key := s.key(roomID)
	var updated domain.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		r, err := decodeRoom(data)
		if err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		encoded, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode room %s: %w", roomID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		if err == nil {
			updated = r
		}
		return err
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		return updated, nil
	}
	return domain.Room{}, fmt.Errorf("update room %s: too much contention", roomID)
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.key(roomID))
	pipe.SRem(ctx, roomIndexKey, roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	if del.Val() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *RoomStore) key(roomID string) string {
	return "quiz:room:" + roomID
}

func decodeRoom(data []byte) (domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal(data, &r); err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	if r.Participants == nil {
		r.Participants = []domain.Participant{}
	}
	return r, nil
}
