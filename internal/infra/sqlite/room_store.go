// Package sqlite keeps rooms in a single-file database for single-instance deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"quizroom-service/internal/domain"
)

// RoomStore implements app.RoomRepository on SQLite. One open connection serializes
// every transaction, which makes Update an atomic read-modify-write.
type RoomStore struct {
	db *sql.DB
}

func NewRoomStore(path string) (*RoomStore, error) {
	if strings.TrimSpace(path) == "" {
		path = "quizroom.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &RoomStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *RoomStore) Close() error {
	return s.db.Close()
}

func (s *RoomStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id TEXT PRIMARY KEY,
			data_json TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL,
			updated_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_created_at ON rooms(created_at_unix);`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, roomID string) (domain.Room, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM rooms WHERE room_id = ?`, roomID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, data_json, created_at_unix, updated_at_unix) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO UPDATE SET data_json = excluded.data_json, updated_at_unix = excluded.updated_at_unix`,
		r.ID, string(raw), r.Created.Unix(), r.Updated.Unix())
	if err != nil {
		return fmt.Errorf("put room %s: %w", r.ID, err)
	}
	return nil
}

func (s *RoomStore) List(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data_json FROM rooms ORDER BY created_at_unix, room_id`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []domain.Room{}
	for rows.Next() {
		var raw string
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (room_id, data_json, created_at_unix, updated_at_unix) VALUES (?, ?, ?, ?)
		ON CONFLICT(room_id) DO NOTHING`,
		r.ID, string(raw), r.Created.Unix(), r.Updated.Unix())
	if err != nil {
		return fmt.Errorf("create room %s: %w", r.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRoomExists
	}
	return nil
}

func (s *RoomStore) Update(ctx context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Room{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data_json FROM rooms WHERE room_id = ?`, roomID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("get room %s: %w", roomID, err)
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
	if _, err := tx.ExecContext(ctx, `UPDATE rooms SET data_json = ?, updated_at_unix = ? WHERE room_id = ?`,
		string(encoded), r.Updated.Unix(), roomID); err != nil {
		return domain.Room{}, fmt.Errorf("update room %s: %w", roomID, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Room{}, fmt.Errorf("commit room %s: %w", roomID, err)
	}
	return r, nil
}

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func decodeRoom(raw string) (domain.Room, error) {
	var r domain.Room
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	if r.Participants == nil {
		r.Participants = []domain.Participant{}
	}
	return r, nil
}
