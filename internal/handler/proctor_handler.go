package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/validator"
)

// ForceSubmitter submits a live session on behalf of a proctor.
type ForceSubmitter interface {
	ForceSubmit(ctx context.Context, studentID int, examID string) (*scoring.Result, error)
}

// CacheWarmer preloads an exam into the question cache.
type CacheWarmer interface {
	WarmExamCache(ctx context.Context, examID string) error
}

// ProctorHandler handles proctor actions on live sessions.
type ProctorHandler struct {
	sessions ForceSubmitter
	cache    CacheWarmer
	log      zerolog.Logger
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(sessions ForceSubmitter, cache CacheWarmer, log zerolog.Logger) *ProctorHandler {
	return &ProctorHandler{
		sessions: sessions,
		cache:    cache,
		log:      log.With().Str("component", "proctor_handler").Logger(),
	}
}

// WarmCache godoc
// POST /api/v1/admin/exams/:exam_id/warm-cache
// Loads the exam into Redis before students connect, so the first wave of
// sessions does not all miss the cache at once.
func (h *ProctorHandler) WarmCache(c *gin.Context) {
	examID := c.Param("exam_id")
	if err := uuid.Validate(examID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.cache.WarmExamCache(c.Request.Context(), examID); err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID).Msg("Cache warm failed")
		response.FailCode(c, errCode(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "warmed"})
}

// ForceSubmitRequest names the student whose session is submitted.
type ForceSubmitRequest struct {
	StudentID int `json:"student_id" binding:"required,gt=0"`
}

// ForceSubmit godoc
// POST /api/v1/admin/exams/:exam_id/force-submit
// Grades and closes a student's live session immediately.
func (h *ProctorHandler) ForceSubmit(c *gin.Context) {
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

	var req ForceSubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.sessions.ForceSubmit(c.Request.Context(), req.StudentID, examID)
	if err != nil && (res == nil || !errors.Is(err, scoring.ErrPersistence)) {
		response.FailCode(c, errCode(err))
		return
	}

	h.log.Info().
		Int("admin_id", claims.UserID).
		Int("student_id", req.StudentID).
		Str("exam_id", examID).
		Int("score", res.Score).
		Msg("Session force-submitted")

	response.Success(c, http.StatusOK, gin.H{
		"score":        res.Score,
		"total_points": res.TotalPoints,
		"persisted":    res.Persisted,
		"practice":     res.Practice,
	})
}
