package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stretchr/testify/mock"
)

// MockRedis is a mock implementation of the redis.Cmdable subset the services
// use. Calling any other command panics.
type MockRedis struct {
	redis.Cmdable
	mock.Mock
}

func (m *MockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	return redis.NewStringResult(args.String(0), args.Error(1))
}

func (m *MockRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	return redis.NewStatusResult("OK", args.Error(0))
}

func (m *MockRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return redis.NewIntResult(int64(len(keys)), args.Error(0))
}

// MockExamStore is a mock implementation of ExamStore
type MockExamStore struct {
	mock.Mock
}

func (m *MockExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.Exam)
	return e, args.Error(1)
}

// MockQuestionStore is a mock implementation of QuestionStore
type MockQuestionStore struct {
	mock.Mock
}

func (m *MockQuestionStore) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	args := m.Called(ctx, examID)
	qs, _ := args.Get(0).([]model.Question)
	return qs, args.Error(1)
}

// MockAttemptChecker is a mock implementation of AttemptChecker
type MockAttemptChecker struct {
	mock.Mock
}

func (m *MockAttemptChecker) HasFinished(ctx context.Context, studentID int, examID string) (bool, error) {
	args := m.Called(ctx, studentID, examID)
	return args.Bool(0), args.Error(1)
}
