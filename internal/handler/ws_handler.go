package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/session"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// SessionOpener opens and closes live exam sessions.
type SessionOpener interface {
	Open(ctx context.Context, p service.OpenParams) (*session.Session, error)
	Close(studentID int, examID string, s *session.Session)
}

// WSHandler streams one exam session per connection.
type WSHandler struct {
	sessions SessionOpener
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionOpener, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// wsClient is the per-connection state of the stream.
type wsClient struct {
	conn    *ws.Conn
	student model.Student
	examID  string
	log     zerolog.Logger

	mu   sync.Mutex
	sess *session.Session
}

func (cl *wsClient) session() *session.Session {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.sess
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket and runs an exam session: announcements, countdown
// notices and state snapshots flow to the client, actions flow back.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID := c.Param("exam_id")
	if err := uuid.Validate(examID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	cl := &wsClient{
		conn:    ws.NewConn(raw),
		student: model.Student{ID: claims.UserID, Name: claims.Name, ClassID: claims.ClassID},
		examID:  examID,
		log: h.log.With().
			Int("student_id", claims.UserID).
			Str("exam_id", examID).
			Logger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		if s := cl.session(); s != nil {
			h.sessions.Close(cl.student.ID, cl.examID, s)
		}
		_ = cl.conn.Close(websocket.CloseNormalClosure, "")
	}()

	cl.log.Info().Msg("Student connected")

	for {
		data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				cl.log.Debug().Msg("Connection closed")
			}
			return
		}
		h.dispatch(ctx, cl, data)
	}
}

// dispatch decodes and runs one client message.
func (h *WSHandler) dispatch(ctx context.Context, cl *wsClient, data []byte) {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		_ = cl.conn.WriteError(response.ErrInvalidPayload, nil)
		return
	}

	switch env.Action {
	case ws.ActionPing:
		_ = cl.conn.WriteTyped(ws.PongEvent{Event: ws.EventPong})
	case ws.ActionStart:
		h.handleStart(ctx, cl)
	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if !decode(cl, data, &req) {
			return
		}
		h.withSession(cl, func(s *session.Session) error {
			return s.SelectAnswer(*req.Value)
		})
	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if !decode(cl, data, &req) {
			return
		}
		h.withSession(cl, func(s *session.Session) error {
			sig, err := s.Navigate(ctx, session.NavAction(strings.ToUpper(req.Nav)))
			if sig.IsBoundary() {
				_ = cl.conn.WriteTyped(ws.SignalEvent{Event: ws.EventSignal, Signal: string(sig)})
			}
			return err
		})
	case ws.ActionSubmit:
		h.handleSubmit(ctx, cl)
	case ws.ActionViolation:
		var req ws.ViolationRequest
		if !decode(cl, data, &req) {
			return
		}
		h.withSession(cl, func(s *session.Session) error {
			if !s.ReportViolation(req.Kind) {
				cl.log.Debug().Str("kind", req.Kind).Msg("Violation ignored")
			}
			return nil
		})
	case ws.ActionDismissWarning:
		h.withSession(cl, func(s *session.Session) error {
			s.DismissTimerWarning()
			return nil
		})
	case ws.ActionState:
		h.withSession(cl, func(*session.Session) error { return nil })
	default:
		cl.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		_ = cl.conn.WriteError(response.ErrUnknownAction, nil)
	}
}

func (h *WSHandler) handleStart(ctx context.Context, cl *wsClient) {
	if cl.session() != nil {
		_ = cl.conn.WriteError(response.ErrSessionAlreadyStarted, nil)
		return
	}

	s, err := h.sessions.Open(ctx, service.OpenParams{
		Student: cl.student,
		ExamID:  cl.examID,
		Announcer: session.AnnouncerFunc(func(text string) {
			_ = cl.conn.WriteTyped(ws.AnnounceEvent{Event: ws.EventAnnounce, Text: text})
		}),
		OnComplete: func(score, totalPoints int) {
			_ = cl.conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Score: score, TotalPoints: totalPoints})
		},
		OnNotice: func(n session.Notice) {
			_ = cl.conn.WriteTyped(ws.NoticeEvent{Event: ws.EventNotice, Kind: string(n.Kind), RemainingSeconds: n.Remaining})
		},
	})
	if err != nil {
		cl.log.Warn().Err(err).Msg("Session start refused")
		_ = cl.conn.WriteError(errCode(err), nil)
		return
	}

	cl.mu.Lock()
	cl.sess = s
	cl.mu.Unlock()
	writeState(cl, s)
}

func (h *WSHandler) handleSubmit(ctx context.Context, cl *wsClient) {
	s := cl.session()
	if s == nil {
		_ = cl.conn.WriteError(response.ErrSessionNotStarted, nil)
		return
	}

	_, err := s.Submit(ctx, model.SubmitModeManual)
	if err != nil {
		code := errCode(err)
		if errors.Is(err, scoring.ErrPersistence) {
			cl.log.Error().Err(err).Msg("Submission graded but not persisted")
		}
		_ = cl.conn.WriteError(code, nil)
	}
	writeState(cl, s)
}

// withSession runs fn on the started session and pushes the resulting state.
func (h *WSHandler) withSession(cl *wsClient, fn func(s *session.Session) error) {
	s := cl.session()
	if s == nil {
		_ = cl.conn.WriteError(response.ErrSessionNotStarted, nil)
		return
	}
	if err := fn(s); err != nil {
		_ = cl.conn.WriteError(errCode(err), nil)
	}
	writeState(cl, s)
}

func decode(cl *wsClient, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		_ = cl.conn.WriteError(response.ErrInvalidPayload, nil)
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		_ = cl.conn.WriteError(response.ErrValidation, fields)
		return false
	}
	return true
}

func writeState(cl *wsClient, s *session.Session) {
	_ = cl.conn.WriteTyped(ws.StateEvent{Event: ws.EventState, State: s.State()})
}
