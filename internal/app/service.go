package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"quizroom-service/internal/domain"
	"quizroom-service/internal/questions"
	"quizroom-service/internal/room"
	"quizroom-service/internal/scoring"
)

const (
	maxCodeAttempts = 8
	// expiryGrace lets answers sent right at the deadline land before the window closes.
	expiryGrace  = 500 * time.Millisecond
	timerTimeout = 5 * time.Second
)

// errUnchanged aborts an Update whose callback had nothing to write.
var errUnchanged = errors.New("room unchanged")

// Options tune the room service.
type Options struct {
	// AnswerWindow is how long a question accepts answers. Zero disables the server deadline.
	AnswerWindow    time.Duration
	MinParticipants int
	// RoomTTL is how long a room may sit idle before ReapIdle deletes it.
	RoomTTL time.Duration
	Verbose bool
}

// DefaultOptions mirrors the scoring window and the default room size.
func DefaultOptions() Options {
	return Options{
		AnswerWindow:    time.Duration(scoring.MaxTimeAllowedMs) * time.Millisecond,
		MinParticipants: room.DefaultMinParticipants,
		RoomTTL:         2 * time.Hour,
	}
}

// CreateRoomRequest describes where a new room gets its questions from. Raw CSV/JSON
// text wins over a stored set; with neither the built-in examples are used.
type CreateRoomRequest struct {
	Questions     string `json:"questions"`
	QuestionSetID string `json:"questionSet"`
}

// Submission is the outcome of a scored answer.
type Submission struct {
	Record      domain.AnswerRecord `json:"record"`
	Correct     bool                `json:"correct"`
	Score       int                 `json:"score"`
	AllAnswered bool                `json:"allAnswered"`
	Room        domain.Room         `json:"room"`
}

// Service is the session gateway: it applies room transitions atomically through a
// RoomRepository and publishes a RoomEvent after every successful mutation.
type Service struct {
	rooms     RoomRepository
	sets      QuestionSetRepository
	hub       *Hub
	publisher EventPublisher
	opts      Options
	now       func() time.Time
	newID     func() string

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewService(rooms RoomRepository, sets QuestionSetRepository, opts Options) *Service {
	if opts.MinParticipants < 0 {
		opts.MinParticipants = 0
	}
	return &Service{
		rooms:  rooms,
		sets:   sets,
		hub:    NewHub(),
		opts:   opts,
		now:    time.Now,
		newID:  uuid.NewString,
		timers: make(map[string]*time.Timer),
	}
}

// WithPublisher forwards every event to p in addition to local subscribers.
func (s *Service) WithPublisher(p EventPublisher) *Service {
	s.publisher = p
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Hub exposes the local fan-out so relays can inject events from other instances.
func (s *Service) Hub() *Hub {
	return s.hub
}

// CreateRoom stores a new waiting room under a fresh code. The returned room's Host
// is the caller's host ID; it is not a participant.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (domain.Room, error) {
	qs, err := s.resolveQuestions(ctx, req)
	if err != nil {
		return domain.Room{}, err
	}

	hostID := s.newID()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := room.GenerateCode()
		if err != nil {
			return domain.Room{}, err
		}
		r := room.New(code, hostID, qs, s.now())
		err = s.rooms.Create(ctx, r)
		if errors.Is(err, domain.ErrRoomExists) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		s.logf("room %s created with %d questions", r.ID, len(r.Questions))
		s.publish(ctx, domain.EventRoomCreated, r)
		return r, nil
	}
	return domain.Room{}, fmt.Errorf("allocate room code: %w", domain.ErrRoomExists)
}

func (s *Service) resolveQuestions(ctx context.Context, req CreateRoomRequest) ([]domain.Question, error) {
	switch {
	case strings.TrimSpace(req.Questions) != "":
		return questions.Require(req.Questions)
	case req.QuestionSetID != "":
		if s.sets == nil {
			return nil, domain.ErrQuestionSetNotFound
		}
		set, err := s.sets.GetQuestionSet(ctx, req.QuestionSetID)
		if err != nil {
			return nil, err
		}
		if len(set.Questions) == 0 {
			return nil, domain.ErrInvalidQuestionSet
		}
		return set.Questions, nil
	default:
		return questions.Examples(), nil
	}
}

// JoinRoom adds a participant. An empty participantID allocates a new one; a known
// ID reconnects the existing participant with its score intact.
func (s *Service) JoinRoom(ctx context.Context, roomID, participantID, name string) (domain.Room, domain.Participant, error) {
	roomID = NormalizeCode(roomID)
	if participantID == "" {
		participantID = s.newID()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Player"
	}
	updated, err := s.mutate(ctx, roomID, domain.EventParticipantJoin, func(r *domain.Room) error {
		return room.Join(r, participantID, name)
	})
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}
	s.logf("participant %s joined room %s", participantID, roomID)
	return updated, *updated.Participant(participantID), nil
}

// StartQuiz moves the room to its first question and opens the answer window.
func (s *Service) StartQuiz(ctx context.Context, roomID, callerID string) (domain.Room, error) {
	roomID = NormalizeCode(roomID)
	updated, err := s.mutate(ctx, roomID, domain.EventQuizStarted, func(r *domain.Room) error {
		return room.Start(r, callerID, s.opts.MinParticipants, s.now())
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.logf("room %s started with %d participants", roomID, len(updated.Participants))
	s.scheduleExpiry(roomID, updated.CurrentQuestion)
	return updated, nil
}

// SubmitAnswer scores a participant's response to the current question.
func (s *Service) SubmitAnswer(ctx context.Context, roomID, participantID string, resp domain.Response) (Submission, error) {
	roomID = NormalizeCode(roomID)
	var (
		record domain.AnswerRecord
		result scoring.Result
	)
	updated, err := s.rooms.Update(ctx, roomID, func(r *domain.Room) error {
		var err error
		record, result, err = room.SubmitAnswer(r, participantID, resp, s.now())
		if err == nil {
			r.Updated = s.now()
		}
		return err
	})
	if err != nil {
		return Submission{}, err
	}

	all := room.AllParticipantsAnswered(updated, updated.CurrentQuestion)
	event := domain.EventAnswerSubmitted
	if all {
		event = domain.EventQuestionClosed
		s.stopTimer(roomID)
	}
	s.publish(ctx, event, updated)
	s.logf("room %s: %s answered %s (correct=%v, +%d)", roomID, participantID, record.QuestionID, result.Correct, result.Score)

	return Submission{
		Record:      record,
		Correct:     result.Correct,
		Score:       result.Score,
		AllAnswered: all,
		Room:        updated,
	}, nil
}

// NextQuestion advances the room; past the last question the quiz finishes.
func (s *Service) NextQuestion(ctx context.Context, roomID, callerID string) (domain.Room, error) {
	roomID = NormalizeCode(roomID)
	updated, err := s.rooms.Update(ctx, roomID, func(r *domain.Room) error {
		if err := room.NextQuestion(r, callerID, s.now()); err != nil {
			return err
		}
		r.Updated = s.now()
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}

	if updated.Status == domain.StatusFinished {
		s.stopTimer(roomID)
		s.publish(ctx, domain.EventQuizFinished, updated)
		s.logf("room %s finished", roomID)
		return updated, nil
	}
	s.publish(ctx, domain.EventQuestionChanged, updated)
	s.scheduleExpiry(roomID, updated.CurrentQuestion)
	return updated, nil
}

// ExpireQuestion closes the answer window of the question at index, recording a
// no-answer for every participant who stayed silent.
func (s *Service) ExpireQuestion(ctx context.Context, roomID string, index int) (int, error) {
	roomID = NormalizeCode(roomID)
	var written int
	updated, err := s.rooms.Update(ctx, roomID, func(r *domain.Room) error {
		written = room.ExpireQuestion(r, index)
		if written == 0 {
			return errUnchanged
		}
		r.Updated = s.now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s.publish(ctx, domain.EventQuestionClosed, updated)
	s.logf("room %s: question %d expired, %d no-answers recorded", roomID, index, written)
	return written, nil
}

// AllParticipantsAnswered reports whether everyone answered the question at index.
func (s *Service) AllParticipantsAnswered(ctx context.Context, roomID string, index int) (bool, error) {
	r, err := s.rooms.Get(ctx, NormalizeCode(roomID))
	if err != nil {
		return false, err
	}
	return room.AllParticipantsAnswered(r, index), nil
}

// Disconnect marks a participant as gone; score and answers are kept.
func (s *Service) Disconnect(ctx context.Context, roomID, participantID string) error {
	roomID = NormalizeCode(roomID)
	updated, err := s.rooms.Update(ctx, roomID, func(r *domain.Room) error {
		p := r.Participant(participantID)
		if p != nil && !p.Connected {
			return errUnchanged
		}
		if err := room.Disconnect(r, participantID); err != nil {
			return err
		}
		r.Updated = s.now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.publish(ctx, domain.EventParticipantLeft, updated)
	s.logf("participant %s left room %s", participantID, roomID)
	return nil
}

// Room returns the current state of a room.
func (s *Service) Room(ctx context.Context, roomID string) (domain.Room, error) {
	return s.rooms.Get(ctx, NormalizeCode(roomID))
}

// Rooms lists every stored room.
func (s *Service) Rooms(ctx context.Context) ([]domain.Room, error) {
	return s.rooms.List(ctx)
}

// Rankings returns the room's participants ordered by score.
func (s *Service) Rankings(ctx context.Context, roomID string) ([]domain.Participant, error) {
	r, err := s.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return scoring.Rankings(r.Participants), nil
}

// Leaderboard returns the positioned scoreboard of a room.
func (s *Service) Leaderboard(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	r, err := s.Room(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return scoring.BuildLeaderboard(r, s.now()), nil
}

// Results returns the leaderboard together with per-question statistics.
func (s *Service) Results(ctx context.Context, roomID string) (domain.QuizResults, error) {
	r, err := s.Room(ctx, roomID)
	if err != nil {
		return domain.QuizResults{}, err
	}
	return scoring.Results(r, s.now()), nil
}

// Subscribe returns a channel that receives a snapshot followed by every event of
// the room. The caller must invoke the returned cancel function to avoid leaks.
func (s *Service) Subscribe(ctx context.Context, roomID string) (<-chan domain.RoomEvent, func(), error) {
	roomID = NormalizeCode(roomID)
	return s.hub.Subscribe(roomID, func() (domain.RoomEvent, error) {
		r, err := s.rooms.Get(ctx, roomID)
		if err != nil {
			return domain.RoomEvent{}, err
		}
		return s.event(domain.EventSnapshot, r), nil
	})
}

// ReapIdle deletes rooms with no activity for longer than RoomTTL.
func (s *Service) ReapIdle(ctx context.Context) (int, error) {
	if s.opts.RoomTTL <= 0 {
		return 0, nil
	}
	rooms, err := s.rooms.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.opts.RoomTTL)
	reaped := 0
	for _, r := range rooms {
		if !lastActivity(r).Before(cutoff) {
			continue
		}
		if err := s.rooms.Delete(ctx, r.ID); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			return reaped, err
		}
		s.stopTimer(r.ID)
		s.hub.CloseRoom(r.ID)
		reaped++
		s.logf("room %s reaped after %s idle", r.ID, s.opts.RoomTTL)
	}
	return reaped, nil
}

// RunReaper calls ReapIdle every interval until ctx is done.
func (s *Service) RunReaper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ReapIdle(ctx); err != nil && ctx.Err() == nil {
				log.Printf("reap idle rooms: %v", err)
			}
		}
	}
}

// Close stops every pending answer-window timer.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// NormalizeCode upper-cases a user-typed room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) mutate(ctx context.Context, roomID string, event domain.EventType, fn func(*domain.Room) error) (domain.Room, error) {
	updated, err := s.rooms.Update(ctx, roomID, func(r *domain.Room) error {
		if err := fn(r); err != nil {
			return err
		}
		r.Updated = s.now()
		return nil
	})
	if err != nil {
		return domain.Room{}, err
	}
	s.publish(ctx, event, updated)
	return updated, nil
}

func (s *Service) event(t domain.EventType, r domain.Room) domain.RoomEvent {
	return domain.RoomEvent{
		Type:        t,
		RoomID:      r.ID,
		Version:     r.Version,
		Room:        r,
		Leaderboard: scoring.BuildLeaderboard(r, s.now()),
	}
}

func (s *Service) publish(ctx context.Context, t domain.EventType, r domain.Room) {
	ev := s.event(t, r)
	s.hub.Broadcast(ev)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Printf("publish %s for room %s: %v", t, r.ID, err)
	}
}

func (s *Service) scheduleExpiry(roomID string, index int) {
	if s.opts.AnswerWindow <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
	}
	s.timers[roomID] = time.AfterFunc(s.opts.AnswerWindow+expiryGrace, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timerTimeout)
		defer cancel()
		if _, err := s.ExpireQuestion(ctx, roomID, index); err != nil && !errors.Is(err, domain.ErrRoomNotFound) {
			log.Printf("expire question %d in room %s: %v", index, roomID, err)
		}
	})
}

func (s *Service) stopTimer(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

func (s *Service) logf(format string, args ...any) {
	if !s.opts.Verbose {
		return
	}
	log.Printf(format, args...)
}

func lastActivity(r domain.Room) time.Time {
	last := r.Created
	for _, t := range []time.Time{r.Updated, r.QuestionStartedAt, r.Finished} {
		if t.After(last) {
			last = t
		}
	}
	return last
}
