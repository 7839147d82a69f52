package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// NewScoringWorker consumes persist_scores_queue, marks sessions completed and
// clears their Redis autosave buffers.
func NewScoringWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *Batcher[model.CompletionEntry] {
	return NewBatcher("scoring_worker",
		NewRedisQueue(rdb, config.WorkerKey.PersistScoresQueue),
		&completionSink{pool: pool, rdb: rdb},
		log,
	)
}

type completionSink struct {
	pool *pgxpool.Pool
	rdb  redis.Cmdable
}

func (s *completionSink) Valid(p model.CompletionEntry) bool {
	return validUUID(p.ExamID)
}

// Bulk upserts because the completion may overtake the question order entry
// that opens the row.
func (s *completionSink) Bulk(ctx context.Context, batch []model.CompletionEntry) error {
	batch = lastByKey(batch, func(p model.CompletionEntry) sessionKey {
		return sessionKey{p.ExamID, p.StudentID}
	})

	n := len(batch)
	examIDs := make([]uuid.UUID, 0, n)
	students := make([]int, 0, n)
	scores := make([]int, 0, n)
	totals := make([]int, 0, n)
	modes := make([]string, 0, n)
	finishedAts := make([]time.Time, 0, n)
	for _, p := range batch {
		examIDs = append(examIDs, uuid.MustParse(p.ExamID))
		students = append(students, p.StudentID)
		scores = append(scores, p.Score)
		totals = append(totals, p.TotalPoints)
		modes = append(modes, string(p.Mode))
		finishedAts = append(finishedAts, finishedAt(p))
	}

	query := `
		INSERT INTO exam_sessions (exam_id, student_id, status, final_score, total_points, submit_mode, finished_at)
		SELECT u.exam_id, u.student_id, $7, u.score, u.total, u.mode, u.finished_at
		FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::int[],
			$4::int[],
			$5::text[],
			$6::timestamptz[]
		) AS u (exam_id, student_id, score, total, mode, finished_at)
		ON CONFLICT (exam_id, student_id) DO UPDATE
		SET status = EXCLUDED.status,
		    final_score = EXCLUDED.final_score,
		    total_points = EXCLUDED.total_points,
		    submit_mode = EXCLUDED.submit_mode,
		    finished_at = EXCLUDED.finished_at
	`

	if _, err := s.pool.Exec(ctx, query, examIDs, students, scores, totals, modes, finishedAts, model.SessionStatusCompleted); err != nil {
		return err
	}
	s.clearAutosave(ctx, batch)
	return nil
}

func (s *completionSink) Single(ctx context.Context, p model.CompletionEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO exam_sessions (exam_id, student_id, status, final_score, total_points, submit_mode, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (exam_id, student_id) DO UPDATE
		 SET status = EXCLUDED.status,
		     final_score = EXCLUDED.final_score,
		     total_points = EXCLUDED.total_points,
		     submit_mode = EXCLUDED.submit_mode,
		     finished_at = EXCLUDED.finished_at`,
		uuid.MustParse(p.ExamID), p.StudentID, model.SessionStatusCompleted, p.Score, p.TotalPoints, string(p.Mode), finishedAt(p),
	)
	if err != nil {
		return err
	}
	s.clearAutosave(ctx, []model.CompletionEntry{p})
	return nil
}

// clearAutosave deletes the Redis buffers of completed sessions. Best effort:
// the keys also carry a TTL.
func (s *completionSink) clearAutosave(ctx context.Context, batch []model.CompletionEntry) {
	keys := autosaveKeys(batch)
	if len(keys) == 0 {
		return
	}
	_ = s.rdb.Del(ctx, keys...).Err()
}

// autosaveKeys lists the buffers to drop. Completions whose attempt row was
// not written keep theirs so the answers survive until the TTL.
func autosaveKeys(batch []model.CompletionEntry) []string {
	var keys []string
	for _, p := range batch {
		if !p.Persisted {
			continue
		}
		keys = append(keys,
			config.CacheKey.StudentAnswersKey(p.ExamID, p.StudentID),
			config.CacheKey.StudentExamSessionStartKey(p.ExamID, p.StudentID),
			config.CacheKey.StudentViolationCountKey(p.ExamID, p.StudentID),
		)
	}
	return keys
}

func finishedAt(p model.CompletionEntry) time.Time {
	if p.FinishedAt.IsZero() {
		return time.Now()
	}
	return p.FinishedAt
}
