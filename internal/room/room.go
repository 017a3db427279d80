// Package room implements the room lifecycle: waiting -> active -> finished.
//
// Every operation mutates the room in place and either succeeds completely or
// returns an error with the room untouched. Callers are expected to run these
// inside a repository transaction so each call is an atomic read-modify-write.
package room

import (
	"crypto/rand"
	"fmt"
	"time"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/questions"
	"quizroom-service/internal/scoring"
)

const (
	// CodeAlphabet omits characters that are easy to confuse (0/O, 1/I).
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 6
	// DefaultMinParticipants is the smallest room a quiz can start with.
	DefaultMinParticipants = 2
)

// ClientTimeTolerance is how far a client-reported time to answer may undercut the
// server's own measurement, covering the trip from the client to the server.
const ClientTimeTolerance = time.Second

// GenerateCode returns a random room code. len(CodeAlphabet) divides 256, so byte
// modulo keeps the distribution uniform.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	out := make([]byte, CodeLength)
	for i := range out {
		out[i] = CodeAlphabet[int(buf[i])%len(CodeAlphabet)]
	}
	return string(out), nil
}

// New creates a waiting room. An empty question list falls back to the built-in examples.
func New(code, hostID string, qs []domain.Question, now time.Time) domain.Room {
	if len(qs) == 0 {
		qs = questions.Examples()
	}
	r := domain.Room{
		ID:              code,
		Host:            hostID,
		Status:          domain.StatusWaiting,
		CurrentQuestion: -1,
		Questions:       append([]domain.Question(nil), qs...),
		Participants:    []domain.Participant{},
		Created:         now,
		Updated:         now,
		Version:         1,
	}
	return r.Clone()
}

// IsHost reports whether callerID controls the room.
func IsHost(r domain.Room, callerID string) bool {
	return callerID != "" && r.Host == callerID
}

// Join appends a participant. Rejoining with a known ID reconnects without resetting score.
func Join(r *domain.Room, participantID, name string) error {
	if r.Status == domain.StatusFinished {
		return statusError(r)
	}
	if IsHost(*r, participantID) {
		return fmt.Errorf("%w: the host cannot join as a participant", domain.ErrUnauthorizedAction)
	}
	if p := r.Participant(participantID); p != nil {
		p.Connected = true
		r.Version++
		return nil
	}
	r.Participants = append(r.Participants, domain.Participant{
		ID:        participantID,
		Name:      name,
		Score:     0,
		Answers:   []domain.AnswerRecord{},
		Connected: true,
	})
	r.Version++
	return nil
}

// Start moves a waiting room to its first question.
func Start(r *domain.Room, callerID string, minParticipants int, now time.Time) error {
	if !IsHost(*r, callerID) {
		return domain.ErrUnauthorizedAction
	}
	if r.Status != domain.StatusWaiting {
		return statusError(r)
	}
	if len(r.Questions) == 0 {
		return domain.ErrInvalidQuestionSet
	}
	if len(r.Participants) < minParticipants {
		return fmt.Errorf("%w: have %d, need %d", domain.ErrNotEnoughParticipants, len(r.Participants), minParticipants)
	}
	r.Status = domain.StatusActive
	r.CurrentQuestion = 0
	r.QuestionStartedAt = now
	r.Version++
	return nil
}

// SubmitAnswer scores a response to the current question and records it once.
// A missing time to answer is measured from the question start on the server clock;
// a reported one is raised to at least that measurement minus ClientTimeTolerance.
func SubmitAnswer(r *domain.Room, participantID string, resp domain.Response, now time.Time) (domain.AnswerRecord, scoring.Result, error) {
	q, ok := r.Current()
	if !ok {
		return domain.AnswerRecord{}, scoring.Result{}, statusError(r)
	}
	p := r.Participant(participantID)
	if p == nil {
		return domain.AnswerRecord{}, scoring.Result{}, domain.ErrParticipantNotFound
	}
	if resp.QuestionID != "" && resp.QuestionID != q.ID {
		return domain.AnswerRecord{}, scoring.Result{}, domain.ErrQuestionMismatch
	}
	if resp.SelectedOption != domain.NoAnswer && (resp.SelectedOption < 0 || resp.SelectedOption >= len(q.Options)) {
		return domain.AnswerRecord{}, scoring.Result{}, fmt.Errorf("%w: option %d does not exist", domain.ErrInvalidTransition, resp.SelectedOption)
	}
	if _, answered := p.AnswerFor(q.ID); answered {
		return domain.AnswerRecord{}, scoring.Result{}, domain.ErrAlreadyAnswered
	}

	resp.QuestionID = q.ID
	if !r.QuestionStartedAt.IsZero() {
		// The client clock may only shave latency off the server's measurement.
		elapsed := now.Sub(r.QuestionStartedAt).Milliseconds()
		floor := elapsed - ClientTimeTolerance.Milliseconds()
		if resp.TimeToAnswer == nil {
			resp.TimeToAnswer = &elapsed
		} else if *resp.TimeToAnswer < floor {
			resp.TimeToAnswer = &floor
		}
	}
	if resp.TimeToAnswer != nil {
		clamped := scoring.ClampTime(*resp.TimeToAnswer)
		resp.TimeToAnswer = &clamped
	}

	result := scoring.EvaluateAnswer(q, resp)
	record := domain.AnswerRecord{
		QuestionID:     q.ID,
		SelectedOption: resp.SelectedOption,
		Correct:        result.Correct,
		TimeToAnswer:   resp.TimeToAnswer,
	}
	p.Answers = append(p.Answers, record)
	p.Score += result.Score
	r.Version++
	return record, result, nil
}

// NextQuestion advances the quiz; moving past the last question finishes it.
func NextQuestion(r *domain.Room, callerID string, now time.Time) error {
	if !IsHost(*r, callerID) {
		return domain.ErrUnauthorizedAction
	}
	if r.Status != domain.StatusActive {
		return statusError(r)
	}
	if r.CurrentQuestion+1 >= len(r.Questions) {
		r.Status = domain.StatusFinished
		r.Finished = now
	} else {
		r.CurrentQuestion++
		r.QuestionStartedAt = now
	}
	r.Version++
	return nil
}

// AllParticipantsAnswered reports whether every participant has a record for the
// question at index. A room with no participants has not been answered.
func AllParticipantsAnswered(r domain.Room, index int) bool {
	if len(r.Participants) == 0 || index < 0 || index >= len(r.Questions) {
		return false
	}
	questionID := r.Questions[index].ID
	for i := range r.Participants {
		if _, ok := r.Participants[i].AnswerFor(questionID); !ok {
			return false
		}
	}
	return true
}

// ExpireQuestion closes the answer window for the question at index, recording a
// no-answer for everyone who stayed silent. It returns how many records were written.
func ExpireQuestion(r *domain.Room, index int) int {
	if r.Status != domain.StatusActive || r.CurrentQuestion != index {
		return 0
	}
	questionID := r.Questions[index].ID
	written := 0
	for i := range r.Participants {
		p := &r.Participants[i]
		if _, ok := p.AnswerFor(questionID); ok {
			continue
		}
		full := scoring.MaxTimeAllowedMs
		p.Answers = append(p.Answers, domain.AnswerRecord{
			QuestionID:     questionID,
			SelectedOption: domain.NoAnswer,
			Correct:        false,
			TimeToAnswer:   &full,
		})
		written++
	}
	if written > 0 {
		r.Version++
	}
	return written
}

// Disconnect marks a participant as gone. Score and answers are kept.
func Disconnect(r *domain.Room, participantID string) error {
	p := r.Participant(participantID)
	if p == nil {
		return domain.ErrParticipantNotFound
	}
	if !p.Connected {
		return nil
	}
	p.Connected = false
	r.Version++
	return nil
}

func statusError(r *domain.Room) error {
	return fmt.Errorf("%w: room %s is %s", domain.ErrInvalidTransition, r.ID, r.Status)
}
