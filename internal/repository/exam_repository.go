package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ExamRepository handles exam metadata access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its ID. Returns pgx.ErrNoRows when absent.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, title, COALESCE(subject, ''), duration_minutes
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Subject, &e.DurationMinutes)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts an exam and its questions in one transaction. Question IDs
// must be UUIDs; exam.ID is filled in from the database.
func (r *ExamRepository) Create(ctx context.Context, exam *model.Exam, questions []model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (title, subject, duration_minutes)
			 VALUES ($1, NULLIF($2, ''), $3) RETURNING id::text`,
			exam.Title, exam.Subject, exam.DurationMinutes,
		).Scan(&exam.ID)
		if err != nil {
			return err
		}
		examID, err := uuid.Parse(exam.ID)
		if err != nil {
			return err
		}

		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"questions"},
			[]string{"id", "exam_id", "question_text", "question_type", "options", "correct_answer", "order_num", "score_value"},
			pgx.CopyFromSlice(len(questions), func(i int) ([]any, error) {
				q := questions[i]
				id, err := uuid.Parse(q.ID)
				if err != nil {
					return nil, err
				}
				return []any{id, examID, q.QuestionText, string(q.QuestionType), q.Options, q.CorrectAnswer, q.Number, q.PointValue()}, nil
			}),
		)
		return err
	})
}
