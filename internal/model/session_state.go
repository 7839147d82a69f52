package model

// SessionState is a read-only snapshot of a live exam session for rendering.
type SessionState struct {
	ExamID                 string              `json:"exam_id"`
	ExamTitle              string              `json:"exam_title"`
	CurrentQuestionIndex   int                 `json:"current_question_index"`
	QuestionCount          int                 `json:"question_count"`
	CurrentQuestion        *QuestionForStudent `json:"current_question,omitempty"`
	CurrentAnswer          string              `json:"current_answer"`
	AnsweredCount          int                 `json:"answered_count"`
	IsReviewingUnanswered  bool                `json:"is_reviewing_unanswered"`
	CurrentUnansweredIndex int                 `json:"current_unanswered_index"`
	UnansweredInReview     int                 `json:"unanswered_in_review"`
	FocusedElement         int                 `json:"focused_element"`
	FocusElementCount      int                 `json:"focus_element_count"`
	RemainingSeconds       int                 `json:"remaining_seconds"`
	TimerWarningVisible    bool                `json:"timer_warning_visible"`
	ExitWarningVisible     bool                `json:"exit_warning_visible"`
	ViolationCount         int                 `json:"violation_count"`
	IsCompleted            bool                `json:"is_completed"`
	Degraded               bool                `json:"degraded"`
	Score                  *int                `json:"score,omitempty"`
	TotalPoints            *int                `json:"total_points,omitempty"`
}
