//go:build integration

package service

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestRedisJournal_ResumeKeepsFirstStart(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	examID, studentID := uuid.NewString(), 41
	t.Cleanup(func() {
		rdb.Del(ctx,
			config.CacheKey.StudentExamSessionStartKey(examID, studentID),
			config.CacheKey.StudentAnswersKey(examID, studentID))
	})

	j := NewRedisJournal(rdb)
	first := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	j.now = func() time.Time { return first }

	p, err := j.Resume(ctx, examID, studentID)
	require.NoError(t, err)
	assert.True(t, p.StartedAt.Equal(first))
	assert.Empty(t, p.Answers)

	j.now = time.Now
	require.NoError(t, j.RecordAnswer(ctx, examID, studentID, "q1", "B"))

	p, err = j.Resume(ctx, examID, studentID)
	require.NoError(t, err)
	assert.True(t, p.StartedAt.Equal(first), "a reconnect must not reset the clock")
	assert.Equal(t, map[string]string{"q1": "B"}, p.Answers)
}

func TestRedisJournal_QueuesEntries(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	examID, studentID := uuid.NewString(), 42
	queues := []string{
		config.WorkerKey.PersistAnswersQueue,
		config.WorkerKey.PersistViolationsQueue,
		config.WorkerKey.PersistScoresQueue,
	}
	for _, q := range queues {
		require.NoError(t, rdb.Del(ctx, q).Err())
	}
	t.Cleanup(func() {
		rdb.Del(ctx, append(queues,
			config.CacheKey.StudentAnswersKey(examID, studentID),
			config.CacheKey.StudentViolationCountKey(examID, studentID))...)
	})

	j := NewRedisJournal(rdb)
	require.NoError(t, j.RecordAnswer(ctx, examID, studentID, "q1", "A"))
	require.NoError(t, j.RecordViolation(ctx, examID, studentID, session.Violation{Kind: "APP_BACKGROUNDED", OccurredAt: time.Now()}))
	require.NoError(t, j.RecordViolation(ctx, examID, studentID, session.Violation{Kind: "APP_BACKGROUNDED", OccurredAt: time.Now()}))
	require.NoError(t, j.RecordCompletion(ctx, examID, studentID, &scoring.Result{Score: 3, TotalPoints: 4, Mode: model.SubmitModeTimeout}))

	var answer model.AnswerEntry
	raw, err := rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &answer))
	assert.Equal(t, model.AnswerEntry{StudentID: studentID, ExamID: examID, QID: "q1", Answer: "A"}, answer)

	assert.EqualValues(t, 2, rdb.LLen(ctx, config.WorkerKey.PersistViolationsQueue).Val())

	var done model.CompletionEntry
	raw, err = rdb.LPop(ctx, config.WorkerKey.PersistScoresQueue).Result()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(raw), &done))
	assert.Equal(t, 3, done.Score)
	assert.Equal(t, model.SubmitModeTimeout, done.Mode)
	assert.False(t, done.Persisted)
}

func TestRedisJournal_ResumeCarriesViolationCount(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	examID, studentID := uuid.NewString(), 43
	t.Cleanup(func() {
		rdb.Del(ctx,
			config.WorkerKey.PersistViolationsQueue,
			config.CacheKey.StudentExamSessionStartKey(examID, studentID),
			config.CacheKey.StudentViolationCountKey(examID, studentID))
	})

	j := NewRedisJournal(rdb)
	p, err := j.Resume(ctx, examID, studentID)
	require.NoError(t, err)
	assert.Zero(t, p.Violations)

	for range 2 {
		require.NoError(t, j.RecordViolation(ctx, examID, studentID, session.Violation{Kind: "APP_BACKGROUNDED", OccurredAt: time.Now()}))
	}

	p, err = j.Resume(ctx, examID, studentID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Violations)
}
