package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// QuestionSource fetches the raw question list of an exam.
// Implementations return ErrNotFound (or an empty list) when the exam has no questions.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, examID string) ([]model.Question, error)
}

// LoadResult is the ordered question list of an exam.
type LoadResult struct {
	Questions []model.Question
	// Degraded is set when the static fallback set replaced an unreachable source.
	Degraded bool
}

// Loader fetches and deterministically orders the questions of an exam.
type Loader struct {
	source   QuestionSource
	fallback bool
	log      zerolog.Logger
}

// NewLoader creates a Loader. With fallback enabled, a source failure degrades to
// FallbackQuestions instead of failing.
func NewLoader(source QuestionSource, fallback bool, log zerolog.Logger) *Loader {
	return &Loader{
		source:   source,
		fallback: fallback,
		log:      log.With().Str("component", "question_loader").Logger(),
	}
}

// Load returns the ordered questions for examID.
func (l *Loader) Load(ctx context.Context, examID string) (*LoadResult, error) {
	questions, err := l.source.LoadQuestions(ctx, examID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		if !l.fallback {
			return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		l.log.Warn().Err(err).
			Str("exam_id", examID).
			Msg("Question source unavailable, serving fallback question set")
		return &LoadResult{Questions: OrderQuestions(FallbackQuestions()), Degraded: true}, nil
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("exam %s: %w", examID, ErrNotFound)
	}

	return &LoadResult{Questions: OrderQuestions(questions)}, nil
}
