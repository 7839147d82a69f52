package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/session"
)

// progressTTL bounds how long an abandoned session's buffers live in Redis.
const progressTTL = 24 * time.Hour

// RedisJournal buffers session events in Redis and hands them to the
// persistence workers through their queues.
type RedisJournal struct {
	rdb redis.Cmdable
	now func() time.Time
}

// NewRedisJournal creates a new RedisJournal.
func NewRedisJournal(rdb redis.Cmdable) *RedisJournal {
	return &RedisJournal{rdb: rdb, now: time.Now}
}

// Resume marks the session start on first call and returns the start time,
// answers and violation count carried by earlier connections.
func (j *RedisJournal) Resume(ctx context.Context, examID string, studentID int) (*session.Progress, error) {
	startKey := config.CacheKey.StudentExamSessionStartKey(examID, studentID)

	if err := j.rdb.SetNX(ctx, startKey, j.now().Unix(), progressTTL).Err(); err != nil {
		return nil, fmt.Errorf("mark session start: %w", err)
	}
	raw, err := j.rdb.Get(ctx, startKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read session start: %w", err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session start %q: %w", raw, err)
	}

	answers, err := j.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(examID, studentID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read answers: %w", err)
	}

	violations, err := j.rdb.Get(ctx, config.CacheKey.StudentViolationCountKey(examID, studentID)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read violation count: %w", err)
	}

	return &session.Progress{
		StartedAt:  time.Unix(unix, 0),
		Answers:    answers,
		Violations: violations,
	}, nil
}

// RecordOrder queues the served question order.
func (j *RedisJournal) RecordOrder(ctx context.Context, examID string, studentID int, questionIDs []string) error {
	return j.push(ctx, config.WorkerKey.PersistQuestionOrderQueue, model.QuestionOrderEntry{
		ExamID:    examID,
		StudentID: studentID,
		Order:     questionIDs,
		StartedAt: j.now(),
	})
}

// RecordAnswer keeps the answer in the resume hash and queues it for autosave.
func (j *RedisJournal) RecordAnswer(ctx context.Context, examID string, studentID int, questionID, value string) error {
	payload, err := json.Marshal(model.AnswerEntry{
		StudentID: studentID,
		ExamID:    examID,
		QID:       questionID,
		Answer:    value,
	})
	if err != nil {
		return err
	}

	answersKey := config.CacheKey.StudentAnswersKey(examID, studentID)
	pipe := j.rdb.TxPipeline()
	pipe.HSet(ctx, answersKey, questionID, value)
	pipe.Expire(ctx, answersKey, progressTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("autosave answer: %w", err)
	}
	return nil
}

// RecordViolation bumps the live violation counter and queues the event.
func (j *RedisJournal) RecordViolation(ctx context.Context, examID string, studentID int, v session.Violation) error {
	payload, err := json.Marshal(model.ViolationEntry{
		StudentID:  studentID,
		ExamID:     examID,
		Kind:       v.Kind,
		OccurredAt: v.OccurredAt,
	})
	if err != nil {
		return err
	}

	countKey := config.CacheKey.StudentViolationCountKey(examID, studentID)
	pipe := j.rdb.TxPipeline()
	pipe.Incr(ctx, countKey)
	pipe.Expire(ctx, countKey, progressTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// RecordCompletion queues the final score. The scoring worker clears the
// session buffers only when the attempt row was written, so an unsaved attempt
// can still resume.
func (j *RedisJournal) RecordCompletion(ctx context.Context, examID string, studentID int, res *scoring.Result) error {
	entry := model.CompletionEntry{
		StudentID:   studentID,
		ExamID:      examID,
		Score:       res.Score,
		TotalPoints: res.TotalPoints,
		Mode:        res.Mode,
		Persisted:   res.Persisted || res.Duplicate,
		FinishedAt:  j.now(),
	}
	if res.Record != nil {
		entry.FinishedAt = res.Record.SubmittedAt
	}
	return j.push(ctx, config.WorkerKey.PersistScoresQueue, entry)
}

func (j *RedisJournal) push(ctx context.Context, queue string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := j.rdb.RPush(ctx, queue, payload).Err(); err != nil {
		return fmt.Errorf("push %s: %w", queue, err)
	}
	return nil
}
