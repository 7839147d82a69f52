package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/session"
)

// QuestionStore reads the question bank.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamStore reads exam metadata.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// ExamService serves exam questions and metadata from Redis, falling back to
// PostgreSQL on a cache miss and putting the result back ("self-heal").
// It is the question source and exam source of every session.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	rdb       redis.Cmdable
	ttl       time.Duration
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, questions QuestionStore, rdb redis.Cmdable, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// LoadQuestions implements session.QuestionSource. An unknown exam yields
// session.ErrNotFound; any other error means the question bank is unreachable.
func (s *ExamService) LoadQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	id, err := uuid.Parse(examID)
	if err != nil {
		return nil, fmt.Errorf("exam %q: %w", examID, session.ErrNotFound)
	}

	key := config.CacheKey.ExamQuestionsKey(examID)
	var cached []model.Question
	if s.readCache(ctx, key, &cached) && len(cached) > 0 {
		return cached, nil
	}

	// [CACHE MISS] Go to PostgreSQL.
	questions, err := s.questions.ListByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("exam %s: %w", examID, session.ErrNotFound)
	}

	s.writeCache(ctx, key, questions)
	return questions, nil
}

// GetExam implements session.ExamSource.
func (s *ExamService) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	id, err := uuid.Parse(examID)
	if err != nil {
		return nil, fmt.Errorf("exam %q: %w", examID, session.ErrNotFound)
	}

	key := config.CacheKey.ExamMetaKey(examID)
	var cached model.Exam
	if s.readCache(ctx, key, &cached) {
		return &cached, nil
	}

	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("exam %s: %w", examID, session.ErrNotFound)
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	s.writeCache(ctx, key, exam)
	return exam, nil
}

// WarmExamCache loads an exam's metadata and questions into Redis ahead of the
// first student connection.
func (s *ExamService) WarmExamCache(ctx context.Context, examID string) error {
	if err := s.Invalidate(ctx, examID); err != nil {
		return err
	}
	if _, err := s.GetExam(ctx, examID); err != nil {
		return err
	}
	_, err := s.LoadQuestions(ctx, examID)
	return err
}

// Invalidate drops the cached copies of an exam.
func (s *ExamService) Invalidate(ctx context.Context, examID string) error {
	err := s.rdb.Del(ctx, config.CacheKey.ExamQuestionsKey(examID), config.CacheKey.ExamMetaKey(examID)).Err()
	if err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

// readCache reports whether key held a decodable value. Redis being down is not
// an error for the caller, only a slower path.
func (s *ExamService) readCache(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("Redis read failed, falling back to PostgreSQL")
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Corrupt cache entry, reloading")
		return false
	}
	return true
}

// writeCache is the self-heal step. Failures are logged only.
func (s *ExamService) writeCache(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Self-heal cache write failed")
		return
	}
	s.log.Debug().Str("key", key).Msg("Cache self-healed")
}
