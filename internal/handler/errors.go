package handler

import (
	"errors"

	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/scoring"
	"github.com/stemsi/exstem-engine/internal/service"
	"github.com/stemsi/exstem-engine/internal/session"
)

// errCode maps domain errors to API error codes.
func errCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return response.ErrNoQuestions
	case errors.Is(err, session.ErrSourceUnavailable):
		return response.ErrQuestionSourceDown
	case errors.Is(err, session.ErrNotStarted):
		return response.ErrSessionNotStarted
	case errors.Is(err, session.ErrAlreadyStarted):
		return response.ErrSessionAlreadyStarted
	case errors.Is(err, session.ErrCompleted):
		return response.ErrSessionCompleted
	case errors.Is(err, session.ErrDisposed):
		return response.ErrSessionClosed
	case errors.Is(err, service.ErrAlreadySubmitted):
		return response.ErrExamAlreadySubmitted
	case errors.Is(err, service.ErrNoLiveSession):
		return response.ErrNoLiveSession
	case errors.Is(err, service.ErrAttemptNotFound):
		return response.ErrNotFound
	case errors.Is(err, scoring.ErrPersistence):
		return response.ErrAttemptPersistenceFail
	default:
		return response.ErrInternal
	}
}
