package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitMode enumerates what triggered a submission.
type SubmitMode string

const (
	SubmitModeManual  SubmitMode = "MANUAL"
	SubmitModeTimeout SubmitMode = "TIMEOUT"
	SubmitModeForced  SubmitMode = "FORCED"
)

// QuestionAttempt is the grading detail of one question, created at submission time.
// Only the enhancement pass may change IsCorrect/PointsAwarded, and only upward.
type QuestionAttempt struct {
	QuestionID     string       `json:"question_id"`
	QuestionText   string       `json:"question_text"`
	CorrectAnswer  string       `json:"correct_answer"`
	StudentAnswer  string       `json:"student_answer"`
	IsCorrect      bool         `json:"is_correct"`
	QuestionType   QuestionType `json:"question_type"`
	Options        []string     `json:"options,omitempty"`
	PointsAwarded  int          `json:"points_awarded"`
	PointsPossible int          `json:"points_possible"`
}

// ExamAttemptRecord is the persisted result of one (student, exam) pair.
type ExamAttemptRecord struct {
	ID             uuid.UUID         `json:"id"`
	ExamID         string            `json:"exam_id"`
	ExamTitle      string            `json:"exam_title"`
	Subject        string            `json:"subject"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	Score          int               `json:"score"`
	TotalPoints    int               `json:"total_points"`
	AnsweredCount  int               `json:"answered_count"`
	TotalQuestions int               `json:"total_questions"`
	Questions      []QuestionAttempt `json:"questions"`
	StudentID      int               `json:"student_id"`
	StudentName    string            `json:"student_name"`
	SubmitMode     SubmitMode        `json:"submit_mode"`
}
