package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quizroom-service/internal/domain"
)

// RoomStore persists rooms as JSONB rows. Update locks the row with SELECT ... FOR UPDATE
// so concurrent transitions on one room serialize inside Postgres.
type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (domain.Room, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM rooms WHERE id=$1`, roomID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return decodeRoom(raw)
}

func (s *RoomStore) Put(ctx context.Context, r domain.Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO rooms (id, data, created_at, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		r.ID, raw, r.Created)
	if err != nil {
		return fmt.Errorf("put room %s: %w", r.ID, err)
	}
	return nil
}

func (s *RoomStore) List(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM rooms ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []domain.Room{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list rooms: %w", err)
		}
		r, err := decodeRoom(raw)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

func (s *RoomStore) Create(ctx context.Context, r domain.Room) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, data, created_at, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO NOTHING`,
		r.ID, raw, r.Created)
	if err != nil {
		return fmt.Errorf("create room %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomExists
	}
	return nil
}

func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Room{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT data FROM rooms WHERE id=$1 FOR UPDATE`, roomID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("lock room %s: %w", roomID, err)
	}
	r, err := decodeRoom(raw)
	if err != nil {
		return domain.Room{}, err
	}
	if err := fn(&r); err != nil {
		return domain.Room{}, err
	}

	encoded, err := json.Marshal(r)
	if err != nil {
		return domain.Room{}, fmt.Errorf("encode room %s: %w", roomID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE rooms SET data=$2, updated_at=now() WHERE id=$1`, roomID, encoded); err != nil {
		return domain.Room{}, fmt.Errorf("update room %s: %w", roomID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Room{}, fmt.Errorf("commit room %s: %w", roomID, err)
	}
	return r, nil
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id=$1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func decodeRoom(raw []byte) (domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	if r.Participants == nil {
		r.Participants = []domain.Participant{}
	}
	return r, nil
}
