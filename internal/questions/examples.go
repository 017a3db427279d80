package questions

import "quizroom-service/internal/domain"

// ExampleSetID names the built-in question set.
const ExampleSetID = "example"

// Examples returns the built-in question set used when a host uploads nothing.
func Examples() []domain.Question {
	return []domain.Question{
		{
			ID:            "q1",
			Text:          "What is the capital of France?",
			Options:       []string{"London", "Berlin", "Paris", "Madrid"},
			CorrectOption: 2,
			Difficulty:    domain.DifficultyBasic,
		},
		{
			ID:            "q2",
			Text:          "Which planet is known as the Red Planet?",
			Options:       []string{"Jupiter", "Mars", "Venus", "Saturn"},
			CorrectOption: 1,
			Difficulty:    domain.DifficultyBasic,
		},
		{
			ID:            "q3",
			Text:          "What is the chemical symbol for gold?",
			Options:       []string{"Au", "Ag", "Fe", "Cu"},
			CorrectOption: 0,
			Difficulty:    domain.DifficultyMedium,
		},
	}
}
