package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// NewViolationWorker consumes persist_violations_queue into exam_violations.
func NewViolationWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *Batcher[model.ViolationEntry] {
	return NewBatcher("violation_worker",
		NewRedisQueue(rdb, config.WorkerKey.PersistViolationsQueue),
		&violationSink{pool: pool},
		log,
	)
}

type violationSink struct {
	pool *pgxpool.Pool
}

func (s *violationSink) Valid(p model.ViolationEntry) bool {
	return validUUID(p.ExamID)
}

// Bulk uses COPY; violations are append-only so there is nothing to deduplicate.
func (s *violationSink) Bulk(ctx context.Context, batch []model.ViolationEntry) error {
	rows := make([][]any, 0, len(batch))
	for _, p := range batch {
		rows = append(rows, []any{uuid.MustParse(p.ExamID), p.StudentID, p.Kind, p.OccurredAt})
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_violations"},
		[]string{"exam_id", "student_id", "kind", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (s *violationSink) Single(ctx context.Context, p model.ViolationEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exam_violations (exam_id, student_id, kind, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.MustParse(p.ExamID), p.StudentID, p.Kind, p.OccurredAt,
	)
	return err
}
