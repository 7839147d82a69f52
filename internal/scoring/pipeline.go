package scoring

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/model"
)

// AttemptStore is the persistence collaborator of the pipeline.
type AttemptStore interface {
	HasAttempt(ctx context.Context, studentID int, examID string) (bool, error)
	SaveAttempt(ctx context.Context, record *model.ExamAttemptRecord) error
	UpdateAttempt(ctx context.Context, record *model.ExamAttemptRecord) error
}

// Submission is everything the pipeline needs to grade one attempt.
type Submission struct {
	Exam      model.Exam
	Student   model.Student
	Questions []model.Question
	Answers   map[string]string
	Mode      model.SubmitMode
	// Degraded submissions ran on the practice set; they are graded but never stored.
	Degraded bool
}

// Result is the graded outcome of a submission.
type Result struct {
	Score       int
	TotalPoints int
	Mode        model.SubmitMode
	Record      *model.ExamAttemptRecord
	// Duplicate is set when a prior attempt existed and nothing was written.
	Duplicate bool
	// Practice is set for degraded submissions, which are never written.
	Practice  bool
	Persisted bool
	Enhanced  bool
}

// Pipeline grades, aggregates, persists once and re-grades short answers.
type Pipeline struct {
	grader *Grader
	sim    Similarity
	store  AttemptStore
	log    zerolog.Logger
	now    func() time.Time
}

// NewPipeline creates a Pipeline.
func NewPipeline(sim Similarity, store AttemptStore, log zerolog.Logger) *Pipeline {
	l := log.With().Str("component", "scoring_pipeline").Logger()
	return &Pipeline{
		grader: NewGrader(sim, l),
		sim:    sim,
		store:  store,
		log:    l,
		now:    time.Now,
	}
}

// Run executes the pipeline. The returned Result is always usable: persistence
// failures are returned as an error wrapping ErrPersistence next to the result.
func (p *Pipeline) Run(ctx context.Context, sub *Submission) (*Result, error) {
	log := p.log.With().
		Str("exam_id", sub.Exam.ID).
		Int("student_id", sub.Student.ID).
		Str("mode", string(sub.Mode)).
		Logger()

	// 1. Per-question grading.
	attempts := make([]model.QuestionAttempt, len(sub.Questions))
	answered := 0
	for i := range sub.Questions {
		q := &sub.Questions[i]
		answer := sub.Answers[q.ID]
		if !isBlank(answer) {
			answered++
		}
		g := p.grader.Grade(ctx, q, answer)
		attempts[i] = model.QuestionAttempt{
			QuestionID:     q.ID,
			QuestionText:   q.QuestionText,
			CorrectAnswer:  q.CorrectAnswer,
			StudentAnswer:  answer,
			IsCorrect:      g.Correct,
			QuestionType:   q.QuestionType,
			Options:        q.Options,
			PointsAwarded:  g.Points,
			PointsPossible: q.PointValue(),
		}
	}

	// 2. Aggregate.
	score, total := Aggregate(attempts)
	res := &Result{Score: score, TotalPoints: total, Mode: sub.Mode}

	if sub.Degraded {
		log.Info().Int("score", score).Int("total_points", total).Msg("Practice submission graded, not persisted")
		res.Practice = true
		return res, nil
	}

	// 3. Idempotency check.
	exists, err := p.store.HasAttempt(ctx, sub.Student.ID, sub.Exam.ID)
	if err != nil {
		// Saving is still safe: the store rejects a second record for the same pair.
		log.Error().Err(err).Msg("Attempt lookup failed, proceeding to save")
	}
	if exists {
		log.Info().Int("score", score).Int("total_points", total).Msg("Attempt already recorded, skipping persistence")
		res.Duplicate = true
		return res, nil
	}

	// 4. Persist.
	record := &model.ExamAttemptRecord{
		ID:             uuid.New(),
		ExamID:         sub.Exam.ID,
		ExamTitle:      sub.Exam.Title,
		Subject:        sub.Exam.Subject,
		SubmittedAt:    p.now(),
		Score:          score,
		TotalPoints:    total,
		AnsweredCount:  answered,
		TotalQuestions: len(sub.Questions),
		Questions:      attempts,
		StudentID:      sub.Student.ID,
		StudentName:    sub.Student.Name,
		SubmitMode:     sub.Mode,
	}
	res.Record = record

	var errs []error
	if err := p.store.SaveAttempt(ctx, record); err != nil {
		log.Error().Err(err).Msg("Save attempt failed, score still delivered")
		errs = append(errs, fmt.Errorf("%w: save: %w", ErrPersistence, err))
	} else {
		res.Persisted = true
	}

	// 5. Enhancement pass. Works on a copy so the saved record stays untouched.
	regraded := slices.Clone(record.Questions)
	if p.enhance(ctx, regraded) {
		enhanced, _ := Aggregate(regraded)
		if enhanced != score {
			updated := *record
			updated.Questions = regraded
			updated.Score = enhanced
			res.Record = &updated
			res.Score = enhanced
			res.Enhanced = true
			log.Info().Int("from", score).Int("to", enhanced).Msg("Enhancement pass raised score")

			if res.Persisted {
				if err := p.store.UpdateAttempt(ctx, &updated); err != nil {
					log.Error().Err(err).Msg("Update attempt failed, enhanced score still delivered")
					errs = append(errs, fmt.Errorf("%w: update: %w", ErrPersistence, err))
				}
			}
		}
	}

	log.Info().
		Int("score", res.Score).
		Int("total_points", res.TotalPoints).
		Int("answered", answered).
		Msg("Exam submitted and graded")

	return res, errors.Join(errs...)
}

// enhance re-scores non-blank SHORT_ANSWER attempts against the stricter threshold.
// It only ever flips an attempt to correct; a scorer failure leaves the attempt as is.
// Reports whether anything changed.
func (p *Pipeline) enhance(ctx context.Context, attempts []model.QuestionAttempt) bool {
	if p.sim == nil {
		return false
	}
	changed := false
	for i := range attempts {
		a := &attempts[i]
		if a.QuestionType != model.QuestionTypeShortAnswer || isBlank(a.StudentAnswer) || a.IsCorrect {
			continue
		}
		if isBlank(a.CorrectAnswer) {
			continue
		}
		score, err := p.sim.Similarity(ctx, a.StudentAnswer, a.CorrectAnswer)
		if err != nil {
			p.log.Warn().Err(err).Str("question_id", a.QuestionID).Msg("Enhancement scoring failed, keeping original grade")
			continue
		}
		if clamp01(score) >= EnhancementThreshold {
			a.IsCorrect = true
			a.PointsAwarded = a.PointsPossible
			changed = true
		}
	}
	return changed
}

// Aggregate sums awarded and possible points.
func Aggregate(attempts []model.QuestionAttempt) (score, total int) {
	for _, a := range attempts {
		score += a.PointsAwarded
		total += a.PointsPossible
	}
	return score, total
}
