package app

import (
	"context"

	"quizroom-service/internal/domain"
)

// RoomRepository abstracts where rooms live (in-memory, Redis, Postgres, SQLite).
//
// Get and List return copies; mutating them has no effect on the stored room.
// Update runs fn against the latest stored room and persists the result only when
// fn returns nil, so concurrent callers never lose each other's writes.
type RoomRepository interface {
	Get(ctx context.Context, roomID string) (domain.Room, error)
	Put(ctx context.Context, room domain.Room) error
	List(ctx context.Context) ([]domain.Room, error)
	Create(ctx context.Context, room domain.Room) error
	Update(ctx context.Context, roomID string, fn func(*domain.Room) error) (domain.Room, error)
	Delete(ctx context.Context, roomID string) error
}

// QuestionSetRepository loads stored question sets (from cache/backing store).
type QuestionSetRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// EventPublisher forwards room events beyond this process, e.g. to other instances.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
}
