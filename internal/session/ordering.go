package session

import (
	"cmp"
	"slices"

	"github.com/stemsi/exstem-engine/internal/model"
)

// typePrecedence fixes the order question types are presented in.
// Types missing from the table sort after all known ones.
var typePrecedence = map[model.QuestionType]int{
	model.QuestionTypeMultipleChoice: 0,
	model.QuestionTypeTrueFalse:      1,
	model.QuestionTypeFillInTheBlank: 2,
	model.QuestionTypeMatching:       3,
	model.QuestionTypeShortAnswer:    4,
	model.QuestionTypeEssay:          5,
}

func precedenceOf(t model.QuestionType) int {
	if p, ok := typePrecedence[t]; ok {
		return p
	}
	return len(typePrecedence)
}

// OrderQuestions returns a copy of qs stably sorted by type precedence, then by number.
// Applying it to an already ordered list returns the same order.
func OrderQuestions(qs []model.Question) []model.Question {
	out := slices.Clone(qs)
	slices.SortStableFunc(out, func(a, b model.Question) int {
		if c := cmp.Compare(precedenceOf(a.QuestionType), precedenceOf(b.QuestionType)); c != 0 {
			return c
		}
		return cmp.Compare(a.Number, b.Number)
	})
	return out
}
