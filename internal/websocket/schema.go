package websocket

import (
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart          Action = "start"
	ActionAnswer         Action = "answer"
	ActionNavigate       Action = "navigate"
	ActionSubmit         Action = "submit"
	ActionViolation      Action = "violation"
	ActionDismissWarning Action = "dismiss_warning"
	ActionState          Action = "state"
	ActionPing           Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action" binding:"required"`
}

// AnswerRequest selects an answer for the current question. An empty value
// clears the answer.
type AnswerRequest struct {
	Action Action  `json:"action"`
	Value  *string `json:"value" binding:"required,max=4000"`
}

// NavigateRequest carries a logical navigation action such as NEXT or ACTIVATE.
// Keyboard and gesture clients send the same names.
type NavigateRequest struct {
	Action Action `json:"action"`
	Nav    string `json:"nav" binding:"required,max=32"`
}

// ViolationRequest is sent by the lockdown monitor when the student leaves the exam.
type ViolationRequest struct {
	Action Action `json:"action"`
	Kind   string `json:"kind" binding:"required,max=64"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAnnounce Event = "announce"
	EventState    Event = "state"
	EventNotice   Event = "notice"
	EventSignal   Event = "signal"
	EventGraded   Event = "graded"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// AnnounceEvent is text for the screen reader, in emission order.
type AnnounceEvent struct {
	Event Event  `json:"event"`
	Text  string `json:"text"`
}

type StateEvent struct {
	Event Event              `json:"event"`
	State model.SessionState `json:"state"`
}

// NoticeEvent mirrors a countdown threshold so clients can show the timer warning.
type NoticeEvent struct {
	Event            Event  `json:"event"`
	Kind             string `json:"kind"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// SignalEvent reports a navigation request that did not move, e.g. NO_NEXT_QUESTION.
type SignalEvent struct {
	Event  Event  `json:"event"`
	Signal string `json:"signal"`
}

type GradedEvent struct {
	Event       Event  `json:"event"`
	Score       int    `json:"score"`
	TotalPoints int    `json:"total_points"`
	Mode        string `json:"mode"`
	Persisted   bool   `json:"persisted"`
}

type ErrorEvent struct {
	Event   Event             `json:"event"`
	Code    response.ErrCode  `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
