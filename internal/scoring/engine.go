package scoring

import (
	"math"

	"quizroom-service/internal/domain"
)

const (
	// BaseScore is awarded for every correct answer.
	BaseScore = 10
	// TimeBonusMax is the extra score for an instant correct answer.
	TimeBonusMax = 5
	// MaxTimeAllowedMs is the answer window; the bonus decays linearly to zero across it.
	MaxTimeAllowedMs int64 = 12000
)

// Result is the outcome of evaluating one answer.
type Result struct {
	Correct bool `json:"correct"`
	Score   int  `json:"score"`
}

// EvaluateAnswer scores a response against a question. It is pure and deterministic.
func EvaluateAnswer(q domain.Question, resp domain.Response) Result {
	correct := resp.SelectedOption != domain.NoAnswer && resp.SelectedOption == q.CorrectOption
	return Result{Correct: correct, Score: Score(correct, resp.TimeToAnswer)}
}

// Score computes base plus time bonus for a correct answer, 0 otherwise or when the time is unknown.
func Score(correct bool, timeToAnswer *int64) int {
	if !correct || timeToAnswer == nil {
		return 0
	}
	t := ClampTime(*timeToAnswer)
	ratio := 1 - float64(t)/float64(MaxTimeAllowedMs)
	return BaseScore + int(math.Floor(ratio*TimeBonusMax+0.5))
}

// ClampTime bounds a time to answer to the answer window.
func ClampTime(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	if ms > MaxTimeAllowedMs {
		return MaxTimeAllowedMs
	}
	return ms
}
