package scoring

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// Domain Errors
var (
	ErrScoringCollaborator = errors.New("similarity scorer failed")
	ErrPersistence         = errors.New("attempt persistence failed")
)

const (
	// GradingThreshold is the similarity at which a free-text answer earns full credit.
	GradingThreshold = 0.70
	// EnhancementThreshold is the stricter threshold of the post-persist re-grading pass.
	EnhancementThreshold = 0.75
)

// Grade is the outcome of grading one answer.
type Grade struct {
	Correct bool
	Points  int
}

// Strategy grades a single question's stored answer.
type Strategy interface {
	Grade(ctx context.Context, q *model.Question, answer string) Grade
}

// Grader routes by question type to the matching Strategy. Types without a
// dedicated strategy use exact matching.
type Grader struct {
	strategies map[model.QuestionType]Strategy
	fallback   Strategy
}

// NewGrader installs the built-in strategies.
func NewGrader(sim Similarity, log zerolog.Logger) *Grader {
	free := similarityStrategy{sim: sim, threshold: GradingThreshold, log: log}
	return &Grader{
		strategies: map[model.QuestionType]Strategy{
			model.QuestionTypeMultipleChoice: exactStrategy{},
			model.QuestionTypeTrueFalse:      exactStrategy{},
			model.QuestionTypeShortAnswer:    free,
			model.QuestionTypeFillInTheBlank: free,
		},
		fallback: exactStrategy{},
	}
}

// Grade grades answer against q.
func (g *Grader) Grade(ctx context.Context, q *model.Question, answer string) Grade {
	s, ok := g.strategies[q.QuestionType]
	if !ok {
		s = g.fallback
	}
	return s.Grade(ctx, q, answer)
}

// --- Strategies ---

// exactStrategy awards full points on case-insensitive equality.
type exactStrategy struct{}

func (exactStrategy) Grade(_ context.Context, q *model.Question, answer string) Grade {
	if isBlank(answer) {
		return Grade{}
	}
	if strings.EqualFold(answer, q.CorrectAnswer) {
		return Grade{Correct: true, Points: q.PointValue()}
	}
	return Grade{}
}

// similarityStrategy grades free text by similarity with floored partial credit,
// falling back to substring containment when similarity is unavailable.
type similarityStrategy struct {
	sim       Similarity
	threshold float64
	log       zerolog.Logger
}

func (s similarityStrategy) Grade(ctx context.Context, q *model.Question, answer string) Grade {
	p := q.PointValue()

	if !isBlank(answer) && !isBlank(q.CorrectAnswer) && s.sim != nil {
		score, err := s.sim.Similarity(ctx, answer, q.CorrectAnswer)
		if err == nil {
			score = clamp01(score)
			if score >= s.threshold {
				return Grade{Correct: true, Points: p}
			}
			return Grade{Points: int(math.Floor(score * float64(p)))}
		}
		s.log.Warn().Err(err).
			Str("question_id", q.ID).
			Msg("Similarity scoring failed, falling back to containment")
	}

	if containsEither(answer, q.CorrectAnswer) {
		return Grade{Correct: true, Points: p}
	}
	return Grade{}
}

// containsEither reports case-insensitive containment in either direction.
// A blank side never matches.
func containsEither(a, b string) bool {
	if isBlank(a) || isBlank(b) {
		return false
	}
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
