package session

import (
	"maps"
	"strings"

	"github.com/stemsi/exstem-engine/internal/model"
)

// AnswerStore maps question IDs to the student's current raw response.
// It is owned by a single Session, which serializes access to it.
type AnswerStore struct {
	answers map[string]string
}

// NewAnswerStore creates an empty AnswerStore.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[string]string)}
}

// Set overwrites the stored value for questionID. Last write wins.
func (s *AnswerStore) Set(questionID, value string) {
	s.answers[questionID] = value
}

// Get returns the stored value and whether one exists.
func (s *AnswerStore) Get(questionID string) (string, bool) {
	v, ok := s.answers[questionID]
	return v, ok
}

// IsAnswered treats an absent or blank value as unanswered.
func (s *AnswerStore) IsAnswered(questionID string) bool {
	return !isBlank(s.answers[questionID])
}

// Unanswered returns, in list order, every question whose value is absent or blank.
func (s *AnswerStore) Unanswered(ordered []model.Question) []model.Question {
	var out []model.Question
	for _, q := range ordered {
		if !s.IsAnswered(q.ID) {
			out = append(out, q)
		}
	}
	return out
}

// AnsweredCount counts the questions of ordered that have a non-blank value.
func (s *AnswerStore) AnsweredCount(ordered []model.Question) int {
	n := 0
	for _, q := range ordered {
		if s.IsAnswered(q.ID) {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the stored answers.
func (s *AnswerStore) Snapshot() map[string]string {
	return maps.Clone(s.answers)
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}
