package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// NewQuestionOrderWorker consumes persist_question_order_queue. The first entry of
// a (student, exam) pair opens its exam_sessions row.
func NewQuestionOrderWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *Batcher[model.QuestionOrderEntry] {
	return NewBatcher("question_order_worker",
		NewRedisQueue(rdb, config.WorkerKey.PersistQuestionOrderQueue),
		&questionOrderSink{pool: pool},
		log,
	)
}

type questionOrderSink struct {
	pool *pgxpool.Pool
}

type sessionKey struct {
	examID    string
	studentID int
}

func (s *questionOrderSink) Valid(p model.QuestionOrderEntry) bool {
	return validUUID(p.ExamID)
}

func (s *questionOrderSink) Bulk(ctx context.Context, batch []model.QuestionOrderEntry) error {
	batch = lastByKey(batch, func(p model.QuestionOrderEntry) sessionKey {
		return sessionKey{p.ExamID, p.StudentID}
	})

	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	orders := make([][]byte, 0, n)
	startedAts := make([]time.Time, 0, n)
	for _, p := range batch {
		ob, _ := json.Marshal(p.Order)
		examIDs = append(examIDs, uuid.MustParse(p.ExamID))
		students = append(students, p.StudentID)
		orders = append(orders, ob)
		startedAts = append(startedAts, startedAt(p))
	}

	query := `
		INSERT INTO exam_sessions (exam_id, student_id, status, question_order, started_at)
		SELECT u.exam_id, u.student_id, $5, u.qo, u.started_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::jsonb[],
			$4::timestamptz[]
		) AS u (exam_id, student_id, qo, started_at)
		ON CONFLICT (exam_id, student_id) DO UPDATE
		SET question_order = EXCLUDED.question_order
	`

	_, err := s.pool.Exec(ctx, query, examIDs, students, orders, startedAts, model.SessionStatusInProgress)
	return err
}

func (s *questionOrderSink) Single(ctx context.Context, p model.QuestionOrderEntry) error {
	ob, _ := json.Marshal(p.Order)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status, question_order, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET question_order = EXCLUDED.question_order`,
		uuid.MustParse(p.ExamID), p.StudentID, model.SessionStatusInProgress, ob, startedAt(p),
	)
	return err
}

func startedAt(p model.QuestionOrderEntry) time.Time {
	if p.StartedAt.IsZero() {
		return time.Now()
	}
	return p.StartedAt
}
