package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockSimilarity is a mock implementation of Similarity
type MockSimilarity struct {
	mock.Mock
}

func (m *MockSimilarity) Similarity(ctx context.Context, studentText, referenceText string) (float64, error) {
	args := m.Called(ctx, studentText, referenceText)
	return args.Get(0).(float64), args.Error(1)
}

func TestGrader_ExactMatching(t *testing.T) {
	g := NewGrader(nil, zerolog.Nop())
	mc := &model.Question{ID: "q", CorrectAnswer: "Paris", QuestionType: model.QuestionTypeMultipleChoice, Points: 3}
	tf := &model.Question{ID: "q", CorrectAnswer: "True", QuestionType: model.QuestionTypeTrueFalse}

	tests := []struct {
		name    string
		q       *model.Question
		answer  string
		correct bool
		points  int
	}{
		{name: "exact", q: mc, answer: "Paris", correct: true, points: 3},
		{name: "case insensitive", q: mc, answer: "pARIS", correct: true, points: 3},
		{name: "wrong", q: mc, answer: "Rome", points: 0},
		{name: "blank", q: mc, answer: "", points: 0},
		{name: "true false defaults to one point", q: tf, answer: "true", correct: true, points: 1},
		{name: "true false wrong", q: tf, answer: "False", points: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := g.Grade(context.Background(), tc.q, tc.answer)
			assert.Equal(t, tc.correct, got.Correct)
			assert.Equal(t, tc.points, got.Points)
		})
	}
}

func TestGrader_UnknownTypeUsesExact(t *testing.T) {
	g := NewGrader(nil, zerolog.Nop())
	q := &model.Question{CorrectAnswer: "A-1,B-2", QuestionType: model.QuestionTypeMatching, Points: 2}

	assert.Equal(t, Grade{Correct: true, Points: 2}, g.Grade(context.Background(), q, "a-1,b-2"))
	assert.Equal(t, Grade{}, g.Grade(context.Background(), q, "A-2,B-1"))
}

func TestGrader_SimilarityScoring(t *testing.T) {
	q := &model.Question{ID: "sa", CorrectAnswer: "photosynthesis", QuestionType: model.QuestionTypeShortAnswer, Points: 4}

	tests := []struct {
		name    string
		sim     float64
		correct bool
		points  int
	}{
		{name: "above threshold", sim: 0.9, correct: true, points: 4},
		{name: "at threshold", sim: 0.70, correct: true, points: 4},
		{name: "partial credit floors", sim: 0.6, points: 2},
		{name: "low similarity", sim: 0.1, points: 0},
		{name: "out of range clamps", sim: 1.7, correct: true, points: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sim := new(MockSimilarity)
			sim.On("Similarity", mock.Anything, "an answer", "photosynthesis").Return(tc.sim, nil)

			got := NewGrader(sim, zerolog.Nop()).Grade(context.Background(), q, "an answer")

			assert.Equal(t, tc.correct, got.Correct)
			assert.Equal(t, tc.points, got.Points)
			sim.AssertExpectations(t)
		})
	}
}

func TestGrader_SimilarityFailureFallsBackToContainment(t *testing.T) {
	q := &model.Question{ID: "fib", CorrectAnswer: "Au", QuestionType: model.QuestionTypeFillInTheBlank}
	sim := new(MockSimilarity)
	sim.On("Similarity", mock.Anything, mock.Anything, mock.Anything).Return(0.0, errors.New("timeout"))
	g := NewGrader(sim, zerolog.Nop())

	assert.Equal(t, Grade{Correct: true, Points: 1}, g.Grade(context.Background(), q, "The answer is au"))
	assert.Equal(t, Grade{}, g.Grade(context.Background(), q, "Ag"))
}

func TestGrader_BlankNeverMatches(t *testing.T) {
	sim := new(MockSimilarity)
	g := NewGrader(sim, zerolog.Nop())

	blankAnswer := &model.Question{CorrectAnswer: "Au", QuestionType: model.QuestionTypeFillInTheBlank}
	blankReference := &model.Question{CorrectAnswer: "", QuestionType: model.QuestionTypeShortAnswer}

	assert.Equal(t, Grade{}, g.Grade(context.Background(), blankAnswer, "   "))
	assert.Equal(t, Grade{}, g.Grade(context.Background(), blankReference, "anything"))
	sim.AssertNotCalled(t, "Similarity", mock.Anything, mock.Anything, mock.Anything)
}
