package session

import (
	"time"

	"github.com/stemsi/exstem-engine/internal/model"
)

// NavAction is a logical navigation request. Keyboard (tab/enter) and gesture
// (swipe/double tap) input map to the same actions.
type NavAction string

const (
	NavNext           NavAction = "NEXT"
	NavPrevious       NavAction = "PREVIOUS"
	NavEnterReview    NavAction = "ENTER_REVIEW"
	NavReviewNext     NavAction = "REVIEW_NEXT"
	NavReviewPrevious NavAction = "REVIEW_PREVIOUS"
	NavExitReview     NavAction = "EXIT_REVIEW"
	NavFocusNext      NavAction = "FOCUS_NEXT"
	NavFocusPrevious  NavAction = "FOCUS_PREVIOUS"
	NavActivate       NavAction = "ACTIVATE"
	NavRepeat         NavAction = "REPEAT"
)

// NavMode is the navigation sub-state.
type NavMode int

const (
	ModeNormal NavMode = iota
	ModeReviewingUnanswered
)

// controlSlots are the non-option focus slots: question, previous, next, submit/status.
const controlSlots = 4

// FocusKind identifies what the focus cursor points at.
type FocusKind int

const (
	FocusQuestion FocusKind = iota
	FocusOption
	FocusPrevious
	FocusNext
	FocusSubmit
)

// Move is the outcome of a navigation transition.
type Move struct {
	Signal        Signal
	Announcements []Announcement
}

// Navigator holds the current-question pointer, the review sub-state and the
// accessibility focus cursor over an immutable ordered question list.
type Navigator struct {
	questions    []model.Question
	current      int
	mode         NavMode
	unanswered   []int
	reviewIndex  int
	focus        int
	optionsDelay time.Duration
}

// NewNavigator creates a Navigator positioned on the first question.
func NewNavigator(questions []model.Question, optionsDelay time.Duration) *Navigator {
	return &Navigator{questions: questions, optionsDelay: optionsDelay}
}

// Current returns the current question index.
func (n *Navigator) Current() int { return n.current }

// CurrentQuestion returns the question under the pointer.
func (n *Navigator) CurrentQuestion() *model.Question {
	if len(n.questions) == 0 {
		return nil
	}
	return &n.questions[n.current]
}

// Mode returns the navigation sub-state.
func (n *Navigator) Mode() NavMode { return n.mode }

// Reviewing reports whether the navigator is in review-unanswered mode.
func (n *Navigator) Reviewing() bool { return n.mode == ModeReviewingUnanswered }

// ReviewIndex returns the position within the unanswered snapshot. Only meaningful while reviewing.
func (n *Navigator) ReviewIndex() int { return n.reviewIndex }

// ReviewSize returns the size of the unanswered snapshot.
func (n *Navigator) ReviewSize() int { return len(n.unanswered) }

// Focus returns the focus cursor.
func (n *Navigator) Focus() int { return n.focus }

// FocusCount returns the number of focusable elements of the current question.
func (n *Navigator) FocusCount() int {
	q := n.CurrentQuestion()
	if q == nil {
		return controlSlots
	}
	return len(q.Options) + controlSlots
}

// Focused resolves the focus cursor to an element kind and, for options, the option index.
func (n *Navigator) Focused() (FocusKind, int) {
	optionCount := n.FocusCount() - controlSlots
	switch {
	case n.focus == 0:
		return FocusQuestion, -1
	case n.focus <= optionCount:
		return FocusOption, n.focus - 1
	case n.focus == optionCount+1:
		return FocusPrevious, -1
	case n.focus == optionCount+2:
		return FocusNext, -1
	default:
		return FocusSubmit, -1
	}
}

// Advance moves to the next question.
func (n *Navigator) Advance() Move {
	if n.current >= len(n.questions)-1 {
		return Move{Signal: SignalNoNext, Announcements: []Announcement{immediate(msgNoNext)}}
	}
	n.current++
	n.focus = 0
	return Move{Announcements: n.announceCurrent()}
}

// Retreat moves to the previous question.
func (n *Navigator) Retreat() Move {
	if n.current <= 0 {
		return Move{Signal: SignalNoPrevious, Announcements: []Announcement{immediate(msgNoPrevious)}}
	}
	n.current--
	n.focus = 0
	return Move{Announcements: n.announceCurrent()}
}

// EnterReview snapshots the unanswered questions and jumps to the first one.
func (n *Navigator) EnterReview(answers *AnswerStore) Move {
	var positions []int
	for i := range n.questions {
		if !answers.IsAnswered(n.questions[i].ID) {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return Move{Signal: SignalAllAnswered, Announcements: []Announcement{immediate(msgAllAnswered)}}
	}

	n.mode = ModeReviewingUnanswered
	n.unanswered = positions
	n.reviewIndex = 0
	n.current = positions[0]
	n.focus = 0

	anns := []Announcement{immediate(reviewStartAnnouncement(len(positions)))}
	return Move{Announcements: append(anns, n.announceCurrent()...)}
}

// ReviewAdvance moves to the next question of the unanswered snapshot.
func (n *Navigator) ReviewAdvance() Move {
	if !n.Reviewing() {
		return Move{Signal: SignalNotReviewing, Announcements: []Announcement{immediate(msgNotReviewing)}}
	}
	if n.reviewIndex >= len(n.unanswered)-1 {
		return Move{Signal: SignalNoNextUnanswered, Announcements: []Announcement{immediate(msgNoNextUnanswer)}}
	}
	n.reviewIndex++
	return n.relocate()
}

// ReviewRetreat moves to the previous question of the unanswered snapshot.
func (n *Navigator) ReviewRetreat() Move {
	if !n.Reviewing() {
		return Move{Signal: SignalNotReviewing, Announcements: []Announcement{immediate(msgNotReviewing)}}
	}
	if n.reviewIndex <= 0 {
		return Move{Signal: SignalNoPrevUnanswered, Announcements: []Announcement{immediate(msgNoPrevUnanswer)}}
	}
	n.reviewIndex--
	return n.relocate()
}

func (n *Navigator) relocate() Move {
	n.current = n.unanswered[n.reviewIndex]
	n.focus = 0
	anns := []Announcement{immediate(reviewPositionAnnouncement(n.reviewIndex, len(n.unanswered)))}
	return Move{Announcements: append(anns, n.announceCurrent()...)}
}

// ExitReview returns to normal navigation without moving the pointer.
func (n *Navigator) ExitReview() Move {
	if !n.Reviewing() {
		return Move{Signal: SignalNotReviewing, Announcements: []Announcement{immediate(msgNotReviewing)}}
	}
	n.mode = ModeNormal
	n.unanswered = nil
	n.reviewIndex = 0
	return Move{Announcements: []Announcement{immediate(msgExitReview)}}
}

// CycleFocus moves the focus cursor by direction, wrapping over the element count.
// The element label is resolved by the caller, which knows the answer state.
func (n *Navigator) CycleFocus(direction int) {
	count := n.FocusCount()
	n.focus = ((n.focus+direction)%count + count) % count
}

// Repeat re-announces the current question and its options.
func (n *Navigator) Repeat() Move {
	return Move{Announcements: n.announceCurrent()}
}

func (n *Navigator) announceCurrent() []Announcement {
	q := n.CurrentQuestion()
	if q == nil {
		return nil
	}
	anns := []Announcement{immediate(questionAnnouncement(q, n.current, len(n.questions)))}
	if len(q.Options) > 0 {
		anns = append(anns, Announcement{Text: optionsAnnouncement(q), Delay: n.optionsDelay})
	}
	return anns
}
