package model

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionTypeFillInTheBlank QuestionType = "FILL_IN_THE_BLANK"
	QuestionTypeMatching       QuestionType = "MATCHING"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// Question represents a single exam question. Immutable once loaded for a session.
type Question struct {
	ID            string       `json:"id"`
	QuestionText  string       `json:"question_text"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	QuestionType  QuestionType `json:"question_type"`
	Points        int          `json:"points"`
	Number        int          `json:"number"`
}

// PointValue returns the question's point value, defaulting to 1 when unset.
func (q *Question) PointValue() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// ForStudent strips the correct answer.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		Options:      q.Options,
		QuestionType: q.QuestionType,
		Points:       q.PointValue(),
		Number:       q.Number,
	}
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           string       `json:"id"`
	QuestionText string       `json:"question_text"`
	Options      []string     `json:"options,omitempty"`
	QuestionType QuestionType `json:"question_type"`
	Points       int          `json:"points"`
	Number       int          `json:"number"`
}
