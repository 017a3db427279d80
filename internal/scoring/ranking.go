package scoring

import (
	"sort"
	"time"

	"quizroom-service/internal/domain"
)

// Rankings orders participants by score, highest first. Equal scores keep their
// input order; the input slice is never reordered.
func Rankings(participants []domain.Participant) []domain.Participant {
	ranked := make([]domain.Participant, len(participants))
	copy(ranked, participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// BuildLeaderboard turns a room's rankings into positioned entries.
func BuildLeaderboard(room domain.Room, now time.Time) domain.Leaderboard {
	ranked := Rankings(room.Participants)
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Position:      i + 1,
			ParticipantID: p.ID,
			Name:          p.Name,
			Score:         p.Score,
			Connected:     p.Connected,
		})
	}
	return domain.Leaderboard{
		RoomID:    room.ID,
		Entries:   entries,
		UpdatedAt: now,
	}
}
