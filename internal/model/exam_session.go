package model

import "time"

// SessionStatus enumerates exam session states stored in exam_sessions.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
)

// AnswerEntry is the queue payload of one autosaved answer.
type AnswerEntry struct {
	StudentID int    `json:"student_id"`
	ExamID    string `json:"exam_id"`
	QID       string `json:"q_id"`
	Answer    string `json:"answer"`
}

// QuestionOrderEntry records the order a student was served the questions in.
type QuestionOrderEntry struct {
	ExamID    string    `json:"exam_id"`
	StudentID int       `json:"student_id"`
	Order     []string  `json:"order"`
	StartedAt time.Time `json:"started_at"`
}

// ViolationEntry is the queue payload of one integrity violation.
type ViolationEntry struct {
	StudentID  int       `json:"student_id"`
	ExamID     string    `json:"exam_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CompletionEntry marks a session as completed with its final score.
type CompletionEntry struct {
	StudentID   int        `json:"student_id"`
	ExamID      string     `json:"exam_id"`
	Score       int        `json:"score"`
	TotalPoints int        `json:"total_points"`
	Mode        SubmitMode `json:"mode"`
	// Persisted reports whether the attempt row was written. Unpersisted
	// completions keep their resume buffers until the TTL runs out.
	Persisted  bool      `json:"persisted"`
	FinishedAt time.Time `json:"finished_at"`
}
