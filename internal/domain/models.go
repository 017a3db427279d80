package domain

import "time"

// NoAnswer is the SelectedOption recorded when a participant lets the timer run out.
const NoAnswer = -1

// OptionCount is the fixed number of options every question carries.
const OptionCount = 4

// Difficulty labels a question. Anything other than medium is basic.
type Difficulty string

const (
	DifficultyBasic  Difficulty = "basic"
	DifficultyMedium Difficulty = "medium"
)

// RoomStatus is the lifecycle state of a room. Transitions only move forward.
type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusActive   RoomStatus = "active"
	StatusFinished RoomStatus = "finished"
)

// Question models an MCQ question with exactly four options.
type Question struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectOption int        `json:"correctOption"`
	Difficulty    Difficulty `json:"difficulty"`
}

// AnswerRecord is the stored outcome of one participant's response to one question.
type AnswerRecord struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	Correct        bool   `json:"correct"`
	TimeToAnswer   *int64 `json:"timeToAnswer"` // milliseconds, nil if unknown
}

// Participant is a joined player accumulating score via answers.
type Participant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Score     int            `json:"score"`
	Answers   []AnswerRecord `json:"answers"`
	Connected bool           `json:"connected"`
}

// AnswerFor returns the record for questionID, if any.
func (p *Participant) AnswerFor(questionID string) (AnswerRecord, bool) {
	for _, a := range p.Answers {
		if a.QuestionID == questionID {
			return a, true
		}
	}
	return AnswerRecord{}, false
}

// Room is a single quiz session. Participants keep join order.
type Room struct {
	ID                string        `json:"id"`
	Host              string        `json:"host"`
	Status            RoomStatus    `json:"status"`
	CurrentQuestion   int           `json:"currentQuestion"`
	Questions         []Question    `json:"questions"`
	Participants      []Participant `json:"participants"`
	Created           time.Time     `json:"created"`
	QuestionStartedAt time.Time     `json:"questionStartedAt,omitzero"`
	Finished          time.Time     `json:"finished,omitzero"`
	Updated           time.Time     `json:"updated"`
	Version           int64         `json:"version"`
}

// Participant returns a pointer into the room's participant slice.
func (r *Room) Participant(id string) *Participant {
	for i := range r.Participants {
		if r.Participants[i].ID == id {
			return &r.Participants[i]
		}
	}
	return nil
}

// Current returns the question currently being played, if any.
func (r *Room) Current() (Question, bool) {
	if r.Status != StatusActive || r.CurrentQuestion < 0 || r.CurrentQuestion >= len(r.Questions) {
		return Question{}, false
	}
	return r.Questions[r.CurrentQuestion], true
}

// Clone returns a deep copy so callers never share slices with a stored room.
func (r Room) Clone() Room {
	out := r
	out.Questions = make([]Question, len(r.Questions))
	for i, q := range r.Questions {
		q.Options = append([]string(nil), q.Options...)
		out.Questions[i] = q
	}
	out.Participants = make([]Participant, len(r.Participants))
	for i, p := range r.Participants {
		answers := make([]AnswerRecord, len(p.Answers))
		for j, a := range p.Answers {
			if a.TimeToAnswer != nil {
				t := *a.TimeToAnswer
				a.TimeToAnswer = &t
			}
			answers[j] = a
		}
		p.Answers = answers
		out.Participants[i] = p
	}
	return out
}

// Response is a participant's answer to the current question.
type Response struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	TimeToAnswer   *int64 `json:"timeToAnswer,omitempty"`
}

// LeaderboardEntry is a ranked, snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Position      int    `json:"position"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Connected     bool   `json:"connected"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID    string             `json:"roomId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// QuestionStat summarizes how a room answered one question.
type QuestionStat struct {
	QuestionID      string  `json:"questionId"`
	CorrectCount    int     `json:"correctCount"`
	TotalAnswers    int     `json:"totalAnswers"`
	AvgTimeToAnswer float64 `json:"avgTimeToAnswer"`
}

// QuizResults is the end-of-quiz summary.
type QuizResults struct {
	RoomID        string         `json:"roomId"`
	Status        RoomStatus     `json:"status"`
	Leaderboard   Leaderboard    `json:"leaderboard"`
	QuestionStats []QuestionStat `json:"questionStats"`
	Finished      time.Time      `json:"finished,omitzero"`
}

// EventType names a room state change.
type EventType string

const (
	EventSnapshot        EventType = "snapshot"
	EventRoomCreated     EventType = "room_created"
	EventParticipantJoin EventType = "participant_joined"
	EventParticipantLeft EventType = "participant_left"
	EventQuizStarted     EventType = "quiz_started"
	EventAnswerSubmitted EventType = "answer_submitted"
	EventQuestionClosed  EventType = "question_closed"
	EventQuestionChanged EventType = "question_changed"
	EventQuizFinished    EventType = "quiz_finished"
)

// RoomEvent is an immutable snapshot published after every room mutation.
// Clients apply events idempotently by Version.
type RoomEvent struct {
	Type        EventType   `json:"type"`
	RoomID      string      `json:"roomId"`
	Version     int64       `json:"version"`
	Room        Room        `json:"room"`
	Leaderboard Leaderboard `json:"leaderboard"`
}

// QuestionSet is a stored, reusable list of questions a room can be created from.
type QuestionSet struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}
