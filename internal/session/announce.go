package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

// Announcer receives the plain-text announcements a session emits.
// Delivery (speech, braille, live region) is up to the implementation.
type Announcer interface {
	Announce(text string)
}

// AnnouncerFunc adapts a function to the Announcer interface.
type AnnouncerFunc func(text string)

// Announce calls f(text).
func (f AnnouncerFunc) Announce(text string) { f(text) }

// Announcement is a piece of content to announce, optionally after a delay.
type Announcement struct {
	Text  string
	Delay time.Duration
}

func immediate(text string) Announcement { return Announcement{Text: text} }

func questionAnnouncement(q *model.Question, index, total int) string {
	return fmt.Sprintf("Question %d of %d. %s", index+1, total, q.QuestionText)
}

func optionsAnnouncement(q *model.Question) string {
	parts := make([]string, len(q.Options))
	for i, opt := range q.Options {
		parts[i] = fmt.Sprintf("Option %s: %s.", optionLabel(i), opt)
	}
	return "Options. " + strings.Join(parts, " ")
}

// optionLabel returns A, B, ... Z, then 27, 28, ...
func optionLabel(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return fmt.Sprintf("%d", i+1)
}

func startAnnouncement(exam *model.Exam, questions, minutes int) string {
	return fmt.Sprintf("Exam %s started. %d questions. You have %d minutes.", exam.Title, questions, minutes)
}

const (
	msgDegraded       = "The exam server is unreachable. You are working with practice questions and your result will not be recorded."
	msgNoNext         = "This is the last question. There is no next question."
	msgNoPrevious     = "This is the first question. There is no previous question."
	msgAllAnswered    = "All questions have been answered."
	msgNoNextUnanswer = "This is the last unanswered question."
	msgNoPrevUnanswer = "This is the first unanswered question."
	msgNotReviewing   = "You are not reviewing unanswered questions."
	msgExitReview     = "Returned to normal navigation."
	msgAnswerCleared  = "Answer cleared."
	msgSubmitting     = "Submitting your exam."
	msgExitWarning    = "Warning: leaving the exam is not allowed. This attempt has been recorded."
	msgTimeUp         = "Time is up. Your exam is being submitted."
	msgTenMinutes     = "Warning: 10 minutes remaining."
	msgFiveMinutes    = "Warning: 5 minutes remaining. Please review your answers."
	msgOneMinute      = "Critical warning: 1 minute remaining. Your exam will be submitted automatically."
	msgButtonPrevious = "Previous question button."
	msgButtonNext     = "Next question button."
	msgButtonSubmit   = "Submit exam button."
)

func completedAnnouncement(score, total int) string {
	return fmt.Sprintf("Exam submitted. Your score is %d out of %d.", score, total)
}

func minutesRemainingAnnouncement(minutes int) string {
	return fmt.Sprintf("%d minutes remaining.", minutes)
}

func reviewStartAnnouncement(unanswered int) string {
	if unanswered == 1 {
		return "1 unanswered question remaining."
	}
	return fmt.Sprintf("%d unanswered questions remaining.", unanswered)
}

func reviewPositionAnnouncement(pos, total int) string {
	return fmt.Sprintf("Unanswered question %d of %d.", pos+1, total)
}

func selectedAnnouncement(value string) string {
	return fmt.Sprintf("Selected: %s.", value)
}

func statusAnnouncement(answered, total int) string {
	return fmt.Sprintf("%s %d of %d questions answered.", msgButtonSubmit, answered, total)
}
