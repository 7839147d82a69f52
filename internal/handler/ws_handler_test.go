package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/session"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refusingOpener never opens a session.
type refusingOpener struct {
	err    error
	opened chan service.OpenParams
}

func (o *refusingOpener) Open(_ context.Context, p service.OpenParams) (*session.Session, error) {
	o.opened <- p
	return nil, o.err
}

func (o *refusingOpener) Close(int, string, *session.Session) {}

func dialStream(t *testing.T, opener SessionOpener) *websocket.Conn {
	t.Helper()

	r := gin.New()
	r.Use(withClaims(&service.Claims{TokenType: service.TokenTypeStudent, UserID: 7, Name: "Budi"}))
	r.GET("/exams/:exam_id/stream", NewWSHandler(opener, zerolog.Nop(), nil).ExamWebSocketStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/exams/" + uuid.NewString() + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, dst any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(dst))
}

func TestWSHandler_Protocol(t *testing.T) {
	opener := &refusingOpener{err: service.ErrAlreadySubmitted, opened: make(chan service.OpenParams, 1)}
	conn := dialStream(t, opener)

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
		var pong ws.PongEvent
		readEvent(t, conn, &pong)
		assert.Equal(t, ws.EventPong, pong.Event)
	})

	t.Run("action before start", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"action": "answer", "value": "A"}))
		var ev ws.ErrorEvent
		readEvent(t, conn, &ev)
		assert.Equal(t, response.ErrSessionNotStarted, ev.Code)
	})

	t.Run("answer without value", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"action": "answer"}))
		var ev ws.ErrorEvent
		readEvent(t, conn, &ev)
		assert.Equal(t, response.ErrValidation, ev.Code)
		assert.Contains(t, ev.Fields, "value")
	})

	t.Run("unknown action", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"action": "teleport"}))
		var ev ws.ErrorEvent
		readEvent(t, conn, &ev)
		assert.Equal(t, response.ErrUnknownAction, ev.Code)
	})

	t.Run("garbage", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
		var ev ws.ErrorEvent
		readEvent(t, conn, &ev)
		assert.Equal(t, response.ErrInvalidPayload, ev.Code)
	})

	t.Run("start refused", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]string{"action": "start"}))
		var ev ws.ErrorEvent
		readEvent(t, conn, &ev)
		assert.Equal(t, response.ErrExamAlreadySubmitted, ev.Code)

		p := <-opener.opened
		assert.Equal(t, 7, p.Student.ID)
		assert.Equal(t, "Budi", p.Student.Name)
	})
}
