package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ErrInvalidExamID is returned for exam ids that are not UUIDs, such as the
// offline practice set.
var ErrInvalidExamID = errors.New("invalid exam id")

// AttemptRepository persists graded exam attempts. At most one attempt exists per
// (exam, student); the unique constraint backs the pipeline's idempotency check.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// HasAttempt reports whether the student already has a recorded attempt for the exam.
func (r *AttemptRepository) HasAttempt(ctx context.Context, studentID int, examID string) (bool, error) {
	id, err := uuid.Parse(examID)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidExamID, examID)
	}

	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_attempts WHERE exam_id = $1 AND student_id = $2)`,
		id, studentID,
	).Scan(&exists)
	return exists, err
}

// HasFinished reports whether the student is done with the exam: either the
// attempt row exists or the session was marked completed by the scoring worker.
func (r *AttemptRepository) HasFinished(ctx context.Context, studentID int, examID string) (bool, error) {
	id, err := uuid.Parse(examID)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrInvalidExamID, examID)
	}

	var finished bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_attempts WHERE exam_id = $1 AND student_id = $2)
		     OR EXISTS (SELECT 1 FROM exam_sessions WHERE exam_id = $1 AND student_id = $2 AND status = $3)`,
		id, studentID, model.SessionStatusCompleted,
	).Scan(&finished)
	return finished, err
}

// SaveAttempt inserts the record. A concurrent duplicate is silently ignored.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, a *model.ExamAttemptRecord) error {
	examID, err := uuid.Parse(a.ExamID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidExamID, a.ExamID)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_attempts
		   (id, exam_id, student_id, student_name, exam_title, subject, submitted_at,
		    score, total_points, answered_count, total_questions, submit_mode, questions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (exam_id, student_id) DO NOTHING`,
		a.ID, examID, a.StudentID, a.StudentName, a.ExamTitle, a.Subject, a.SubmittedAt,
		a.Score, a.TotalPoints, a.AnsweredCount, a.TotalQuestions, a.SubmitMode, a.Questions,
	)
	return err
}

// UpdateAttempt overwrites the score and per-question detail of a saved record.
func (r *AttemptRepository) UpdateAttempt(ctx context.Context, a *model.ExamAttemptRecord) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_attempts
		 SET score = $1, questions = $2
		 WHERE id = $3`,
		a.Score, a.Questions, a.ID,
	)
	return err
}

// GetByExamAndStudent retrieves the attempt of a specific exam-student combination.
// Returns pgx.ErrNoRows when the student has not submitted.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttemptRecord, error) {
	a := &model.ExamAttemptRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id::text, student_id, student_name, exam_title, subject, submitted_at,
		        score, total_points, answered_count, total_questions, submit_mode, questions
		 FROM exam_attempts
		 WHERE exam_id = $1 AND student_id = $2`, examID, studentID,
	).Scan(&a.ID, &a.ExamID, &a.StudentID, &a.StudentName, &a.ExamTitle, &a.Subject, &a.SubmittedAt,
		&a.Score, &a.TotalPoints, &a.AnsweredCount, &a.TotalQuestions, &a.SubmitMode, &a.Questions)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, ErrInvalidExamID)
}
