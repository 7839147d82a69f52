package session

import "github.com/stemsi/exstem-engine/internal/model"

// FallbackQuestions is the static practice set served when the question source is
// unreachable. It keeps the UI usable in disconnected demo and test setups only;
// sessions running on it are flagged as degraded and are not journaled.
func FallbackQuestions() []model.Question {
	return []model.Question{
		{
			ID:            "fallback-mc-1",
			QuestionText:  "Which planet is known as the Red Planet?",
			Options:       []string{"Venus", "Mars", "Jupiter", "Saturn"},
			CorrectAnswer: "Mars",
			QuestionType:  model.QuestionTypeMultipleChoice,
			Points:        1,
			Number:        1,
		},
		{
			ID:            "fallback-mc-2",
			QuestionText:  "What is 7 multiplied by 8?",
			Options:       []string{"54", "56", "58", "64"},
			CorrectAnswer: "56",
			QuestionType:  model.QuestionTypeMultipleChoice,
			Points:        1,
			Number:        2,
		},
		{
			ID:            "fallback-tf-1",
			QuestionText:  "Water boils at 100 degrees Celsius at sea level.",
			Options:       []string{"True", "False"},
			CorrectAnswer: "True",
			QuestionType:  model.QuestionTypeTrueFalse,
			Points:        1,
			Number:        3,
		},
		{
			ID:            "fallback-fib-1",
			QuestionText:  "The chemical symbol for gold is ____.",
			CorrectAnswer: "Au",
			QuestionType:  model.QuestionTypeFillInTheBlank,
			Points:        1,
			Number:        4,
		},
		{
			ID:            "fallback-sa-1",
			QuestionText:  "Describe what photosynthesis produces.",
			CorrectAnswer: "Photosynthesis produces glucose and oxygen",
			QuestionType:  model.QuestionTypeShortAnswer,
			Points:        2,
			Number:        5,
		},
		{
			ID:            "fallback-essay-1",
			QuestionText:  "Explain why the seasons change during the year.",
			CorrectAnswer: "The tilt of the Earth's axis changes how directly sunlight reaches each hemisphere",
			QuestionType:  model.QuestionTypeEssay,
			Points:        1,
			Number:        6,
		},
	}
}
