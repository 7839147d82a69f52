package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/model"
	"github.com/stemsi/exstem-engine/internal/response"
)

// ResultReader returns a student's graded attempt.
type ResultReader interface {
	GetResult(ctx context.Context, examID uuid.UUID, studentID int) (*model.ExamAttemptRecord, error)
}

// AttemptHandler serves graded attempts to students.
type AttemptHandler struct {
	attempts ResultReader
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts ResultReader) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// GetResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the student's graded attempt, including per-question detail.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.GetResult(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		response.FailCode(c, errCode(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
