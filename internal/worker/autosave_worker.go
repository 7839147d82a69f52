package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// NewAutosaveWorker consumes persist_answers_queue and UPSERTs answers to PostgreSQL.
func NewAutosaveWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *Batcher[model.AnswerEntry] {
	return NewBatcher("autosave_worker",
		NewRedisQueue(rdb, config.WorkerKey.PersistAnswersQueue),
		&answerSink{pool: pool},
		log,
	)
}

type answerSink struct {
	pool *pgxpool.Pool
}

type answerKey struct {
	examID    string
	studentID int
	qid       string
}

func (s *answerSink) Valid(p model.AnswerEntry) bool {
	return validUUID(p.ExamID) && validUUID(p.QID)
}

func (s *answerSink) Bulk(ctx context.Context, batch []model.AnswerEntry) error {
	// ON CONFLICT cannot touch the same row twice in one statement.
	batch = lastByKey(batch, func(p model.AnswerEntry) answerKey {
		return answerKey{p.ExamID, p.StudentID, p.QID}
	})

	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	questionIDs := make([]uuid.UUID, 0, n)
	answers := make([]string, 0, n)
	for _, p := range batch {
		examIDs = append(examIDs, uuid.MustParse(p.ExamID))
		students = append(students, p.StudentID)
		questionIDs = append(questionIDs, uuid.MustParse(p.QID))
		answers = append(answers, p.Answer)
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer)
		 SELECT * FROM UNNEST($1::uuid[], $2::int[], $3::uuid[], $4::text[])
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		examIDs, students, questionIDs, answers,
	)
	return err
}

func (s *answerSink) Single(ctx context.Context, p model.AnswerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO student_answers (exam_id, student_id, question_id, answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, student_id, question_id) DO UPDATE
		 SET answer = EXCLUDED.answer, updated_at = NOW()`,
		uuid.MustParse(p.ExamID), p.StudentID, uuid.MustParse(p.QID), p.Answer,
	)
	return err
}

// validUUID filters out ids of the offline practice set, which never reach the database.
func validUUID(s string) bool {
	return uuid.Validate(s) == nil
}

// lastByKey keeps the last occurrence of each key, in first-seen order.
func lastByKey[T any, K comparable](batch []T, key func(T) K) []T {
	pos := make(map[K]int, len(batch))
	out := make([]T, 0, len(batch))
	for _, it := range batch {
		k := key(it)
		if i, ok := pos[k]; ok {
			out[i] = it
			continue
		}
		pos[k] = len(out)
		out = append(out, it)
	}
	return out
}
