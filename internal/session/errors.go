package session

import "errors"

// Domain Errors
var (
	ErrNotFound          = errors.New("exam has no questions")
	ErrSourceUnavailable = errors.New("question source unavailable")
	ErrNotStarted        = errors.New("session not started")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrCompleted         = errors.New("session already completed")
	ErrDisposed          = errors.New("session disposed")
)

// Signal reports a navigation outcome that is not an error, such as a boundary no-op.
type Signal string

const (
	SignalNone             Signal = ""
	SignalNoNext           Signal = "NO_NEXT_QUESTION"
	SignalNoPrevious       Signal = "NO_PREVIOUS_QUESTION"
	SignalAllAnswered      Signal = "ALL_ANSWERED"
	SignalNoNextUnanswered Signal = "NO_NEXT_UNANSWERED"
	SignalNoPrevUnanswered Signal = "NO_PREVIOUS_UNANSWERED"
	SignalNotReviewing     Signal = "NOT_REVIEWING"
	SignalCompleted        Signal = "SESSION_COMPLETED"
	SignalUnknownAction    Signal = "UNKNOWN_ACTION"
)

// IsBoundary reports whether the signal means the requested move did not happen.
func (s Signal) IsBoundary() bool {
	return s != SignalNone
}
