package scoring

import (
	"time"

	"quizroom-service/internal/domain"
)

// QuestionStats aggregates answers per question in question order.
// No-answer records count toward TotalAnswers; only timed records feed the average.
func QuestionStats(room domain.Room) []domain.QuestionStat {
	stats := make([]domain.QuestionStat, 0, len(room.Questions))
	for _, q := range room.Questions {
		stat := domain.QuestionStat{QuestionID: q.ID}
		var timed int
		var total int64
		for i := range room.Participants {
			a, ok := room.Participants[i].AnswerFor(q.ID)
			if !ok {
				continue
			}
			stat.TotalAnswers++
			if a.Correct {
				stat.CorrectCount++
			}
			if a.TimeToAnswer != nil && a.SelectedOption != domain.NoAnswer {
				timed++
				total += *a.TimeToAnswer
			}
		}
		if timed > 0 {
			stat.AvgTimeToAnswer = float64(total) / float64(timed)
		}
		stats = append(stats, stat)
	}
	return stats
}

// Results summarizes a room for the end-of-quiz screen.
func Results(room domain.Room, now time.Time) domain.QuizResults {
	return domain.QuizResults{
		RoomID:        room.ID,
		Status:        room.Status,
		Leaderboard:   BuildLeaderboard(room, now),
		QuestionStats: QuestionStats(room),
		Finished:      room.Finished,
	}
}
