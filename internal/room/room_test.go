package room

import (
	"errors"
	"strings"
	"testing"
	"time"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/questions"
)

var t0 = time.Unix(1700000000, 0)

func ms(v int64) *int64 { return &v }

func newStartedRoom(t *testing.T) domain.Room {
	t.Helper()
	r := New("ABCDEF", "host", questions.Examples(), t0)
	if err := Join(&r, "p1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := Join(&r, "p2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := Start(&r, "host", DefaultMinParticipants, t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	return r
}

func TestGenerateCodeAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != CodeLength {
			t.Fatalf("expected %d chars, got %q", CodeLength, code)
		}
		for _, c := range code {
			if !strings.ContainsRune(CodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
	}
}

func TestNewRoomDefaults(t *testing.T) {
	r := New("ABCDEF", "host", nil, t0)
	if r.Status != domain.StatusWaiting || r.CurrentQuestion != -1 {
		t.Fatalf("unexpected initial state: %s %d", r.Status, r.CurrentQuestion)
	}
	if len(r.Questions) != len(questions.Examples()) {
		t.Fatalf("expected example questions, got %d", len(r.Questions))
	}
	if len(r.Participants) != 0 || !r.Created.Equal(t0) {
		t.Fatalf("unexpected room: %+v", r)
	}
}

func TestFullQuizScenario(t *testing.T) {
	r := New("ABCDEF", "host", questions.Examples(), t0)
	_ = Join(&r, "p1", "Alice")
	_ = Join(&r, "p2", "Alice")
	if len(r.Participants) != 2 {
		t.Fatalf("duplicate names must be allowed, got %d participants", len(r.Participants))
	}

	if err := Start(&r, "host", DefaultMinParticipants, t0); err != nil {
		t.Fatalf("start: %v", err)
	}
	if r.Status != domain.StatusActive || r.CurrentQuestion != 0 {
		t.Fatalf("expected active at question 0, got %s %d", r.Status, r.CurrentQuestion)
	}
	if AllParticipantsAnswered(r, 0) {
		t.Fatalf("nobody answered yet")
	}

	// q1 correct option is 2.
	if _, res, err := SubmitAnswer(&r, "p1", domain.Response{QuestionID: "q1", SelectedOption: 2, TimeToAnswer: ms(0)}, t0); err != nil || res.Score != 15 {
		t.Fatalf("p1 submit: %+v %v", res, err)
	}
	if AllParticipantsAnswered(r, 0) {
		t.Fatalf("only one participant answered")
	}
	if _, res, err := SubmitAnswer(&r, "p2", domain.Response{QuestionID: "q1", SelectedOption: 0, TimeToAnswer: ms(1000)}, t0); err != nil || res.Correct {
		t.Fatalf("p2 submit: %+v %v", res, err)
	}
	if !AllParticipantsAnswered(r, 0) {
		t.Fatalf("expected all participants answered")
	}

	for i := 0; i < 3; i++ {
		if err := NextQuestion(&r, "host", t0); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if r.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", r.Status)
	}

	before := r.Clone()
	if _, _, err := SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 0}, t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("submit after finish: expected invalid transition, got %v", err)
	}
	if err := NextQuestion(&r, "host", t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("next after finish: expected invalid transition, got %v", err)
	}
	if err := Join(&r, "p3", "Late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("join after finish: expected invalid transition, got %v", err)
	}
	if r.Version != before.Version || len(r.Participants) != 2 {
		t.Fatalf("rejected calls mutated the room")
	}
}

func TestStartGuards(t *testing.T) {
	r := New("ABCDEF", "host", questions.Examples(), t0)
	_ = Join(&r, "p1", "Alice")

	if err := Start(&r, "p1", DefaultMinParticipants, t0); !errors.Is(err, domain.ErrUnauthorizedAction) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := Start(&r, "host", DefaultMinParticipants, t0); !errors.Is(err, domain.ErrNotEnoughParticipants) {
		t.Fatalf("expected not enough participants, got %v", err)
	}
	if !errors.Is(domain.ErrNotEnoughParticipants, domain.ErrInvalidTransition) {
		t.Fatalf("not enough participants must be an invalid transition")
	}
	if r.Status != domain.StatusWaiting || r.CurrentQuestion != -1 {
		t.Fatalf("failed start mutated the room")
	}

	empty := domain.Room{ID: "ZZZZZZ", Host: "host", Status: domain.StatusWaiting, CurrentQuestion: -1}
	if err := Start(&empty, "host", 0, t0); !errors.Is(err, domain.ErrInvalidQuestionSet) {
		t.Fatalf("expected invalid question set, got %v", err)
	}

	started := newStartedRoom(t)
	if err := Start(&started, "host", DefaultMinParticipants, t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second start: expected invalid transition, got %v", err)
	}
}

func TestSubmitAnswerRejections(t *testing.T) {
	waiting := New("ABCDEF", "host", nil, t0)
	_ = Join(&waiting, "p1", "Alice")
	if _, _, err := SubmitAnswer(&waiting, "p1", domain.Response{SelectedOption: 0}, t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("submit while waiting: got %v", err)
	}

	r := newStartedRoom(t)
	if _, _, err := SubmitAnswer(&r, "ghost", domain.Response{SelectedOption: 0}, t0); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("unknown participant: got %v", err)
	}
	if _, _, err := SubmitAnswer(&r, "p1", domain.Response{QuestionID: "q2", SelectedOption: 1}, t0); !errors.Is(err, domain.ErrQuestionMismatch) {
		t.Fatalf("wrong question: got %v", err)
	}
	if _, _, err := SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 7}, t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("bad option: got %v", err)
	}

	if _, _, err := SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 2, TimeToAnswer: ms(0)}, t0); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	score := r.Participant("p1").Score
	if _, _, err := SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 2, TimeToAnswer: ms(0)}, t0); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("duplicate submit: got %v", err)
	}
	p := r.Participant("p1")
	if p.Score != score || len(p.Answers) != 1 {
		t.Fatalf("duplicate submit double counted: score=%d answers=%d", p.Score, len(p.Answers))
	}
}

func TestSubmitAnswerMeasuresServerTime(t *testing.T) {
	r := newStartedRoom(t)
	rec, res, err := SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 2}, t0.Add(6*time.Second))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.TimeToAnswer == nil || *rec.TimeToAnswer != 6000 || res.Score != 13 {
		t.Fatalf("expected 6000ms and 13 points, got %+v %+v", rec, res)
	}

	rec, _, err = SubmitAnswer(&r, "p2", domain.Response{SelectedOption: 2, TimeToAnswer: ms(90000)}, t0)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if *rec.TimeToAnswer != 12000 {
		t.Fatalf("expected clamp to 12000, got %d", *rec.TimeToAnswer)
	}
}

func TestSubmitAnswerDistrustsEarlyClientTime(t *testing.T) {
	r := newStartedRoom(t)
	late := t0.Add(11900 * time.Millisecond)
	rec, res, err := SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 2, TimeToAnswer: ms(0)}, late)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if *rec.TimeToAnswer != 10900 || res.Score != 10 {
		t.Fatalf("expected the server floor of 10900ms and 10 points, got %d ms, %d points", *rec.TimeToAnswer, res.Score)
	}

	// Within the tolerance the client's own measurement stands.
	rec, res, err = SubmitAnswer(&r, "p2", domain.Response{SelectedOption: 2, TimeToAnswer: ms(5500)}, t0.Add(6*time.Second))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if *rec.TimeToAnswer != 5500 || res.Score != 13 {
		t.Fatalf("expected 5500ms and 13 points, got %d ms, %d points", *rec.TimeToAnswer, res.Score)
	}
}

func TestJoinRejectsHost(t *testing.T) {
	r := New("ABCDEF", "host", nil, t0)
	before := r.Version
	if err := Join(&r, "host", "Hosty"); !errors.Is(err, domain.ErrUnauthorizedAction) {
		t.Fatalf("expected the host join to be unauthorized, got %v", err)
	}
	if len(r.Participants) != 0 || r.Version != before {
		t.Fatalf("room changed by a rejected join: %+v", r)
	}
}

func TestNextQuestionGuards(t *testing.T) {
	waiting := New("ABCDEF", "host", nil, t0)
	if err := NextQuestion(&waiting, "host", t0); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("next while waiting: got %v", err)
	}
	r := newStartedRoom(t)
	if err := NextQuestion(&r, "p1", t0); !errors.Is(err, domain.ErrUnauthorizedAction) {
		t.Fatalf("next by player: got %v", err)
	}
	later := t0.Add(time.Minute)
	if err := NextQuestion(&r, "host", later); err != nil {
		t.Fatalf("next: %v", err)
	}
	if r.CurrentQuestion != 1 || !r.QuestionStartedAt.Equal(later) {
		t.Fatalf("expected question 1 started at %v, got %d %v", later, r.CurrentQuestion, r.QuestionStartedAt)
	}
}

func TestExpireQuestionWritesNoAnswers(t *testing.T) {
	r := newStartedRoom(t)
	_, _, _ = SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 2, TimeToAnswer: ms(100)}, t0)

	if n := ExpireQuestion(&r, 1); n != 0 {
		t.Fatalf("expiring a question that is not current must be a no-op, wrote %d", n)
	}
	if n := ExpireQuestion(&r, 0); n != 1 {
		t.Fatalf("expected 1 no-answer record, got %d", n)
	}
	rec, ok := r.Participant("p2").AnswerFor("q1")
	if !ok || rec.SelectedOption != domain.NoAnswer || rec.Correct || *rec.TimeToAnswer != 12000 {
		t.Fatalf("unexpected no-answer record: %+v", rec)
	}
	if r.Participant("p2").Score != 0 {
		t.Fatalf("no-answer must not score")
	}
	if !AllParticipantsAnswered(r, 0) {
		t.Fatalf("expected everyone answered after expiry")
	}
	if n := ExpireQuestion(&r, 0); n != 0 {
		t.Fatalf("second expiry wrote %d records", n)
	}
}

func TestAllParticipantsAnsweredEdgeCases(t *testing.T) {
	r := New("ABCDEF", "host", nil, t0)
	if AllParticipantsAnswered(r, 0) {
		t.Fatalf("empty room must report false")
	}
	_ = Join(&r, "p1", "Alice")
	if AllParticipantsAnswered(r, -1) || AllParticipantsAnswered(r, 99) {
		t.Fatalf("out of range index must report false")
	}
}

func TestDisconnectKeepsScore(t *testing.T) {
	r := newStartedRoom(t)
	_, _, _ = SubmitAnswer(&r, "p1", domain.Response{SelectedOption: 2, TimeToAnswer: ms(0)}, t0)
	if err := Disconnect(&r, "p1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	p := r.Participant("p1")
	if p.Connected || p.Score != 15 {
		t.Fatalf("unexpected participant after disconnect: %+v", p)
	}
	if err := Join(&r, "p1", "Alice"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if p := r.Participant("p1"); !p.Connected || p.Score != 15 || len(r.Participants) != 2 {
		t.Fatalf("rejoin must reconnect in place: %+v", r.Participants)
	}
	if err := Disconnect(&r, "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
}
