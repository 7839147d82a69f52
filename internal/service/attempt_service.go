package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/repository"
)

// ErrAttemptNotFound is returned when the student has no recorded attempt.
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptReader reads persisted attempts.
type AttemptReader interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttemptRecord, error)
}

// AttemptService exposes graded attempts to students.
type AttemptService struct {
	repo AttemptReader
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(repo AttemptReader) *AttemptService {
	return &AttemptService{repo: repo}
}

// GetResult returns the student's attempt of an exam.
func (s *AttemptService) GetResult(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttemptRecord, error) {
	a, err := s.repo.GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}
