package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

const (
	monitorRefreshInterval = 5 * time.Second
	keepAliveInterval      = 30 * time.Second
)

// LiveLister lists the live sessions of an exam.
type LiveLister interface {
	List(examID string) []service.LiveSession
}

// MonitorHandler streams live session progress to proctors.
type MonitorHandler struct {
	sessions LiveLister
	refresh  time.Duration
	log      zerolog.Logger
}

func NewMonitorHandler(sessions LiveLister, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessions: sessions,
		refresh:  monitorRefreshInterval,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Sends a snapshot of the exam's live sessions on connect and on every refresh.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID := c.Param("exam_id")
	if err := uuid.Validate(examID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, examID)

	refreshTicker := time.NewTicker(h.refresh)
	defer refreshTicker.Stop()
	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("exam_id", examID).Msg("Proctor attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID).Msg("Proctor disconnected from live monitor SSE")
			return
		case <-refreshTicker.C:
			h.sendSnapshot(c, examID)
		case <-keepAliveTicker.C:
			c.SSEvent("message", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, examID string) {
	students := h.sessions.List(examID)

	completed, violations := 0, 0
	for _, s := range students {
		if s.IsCompleted {
			completed++
		}
		violations += s.ViolationCount
	}

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam_id": examID,
			"stats": gin.H{
				"total_live":       len(students),
				"total_completed":  completed,
				"total_violations": violations,
			},
			"students": students,
		},
	})
	c.Writer.Flush()
}
