package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// LoginValidator checks a student token against the login that owns the device.
type LoginValidator interface {
	ValidateStudentSession(ctx context.Context, studentID int, jti string) error
}

// RequireActiveLogin rejects student tokens whose login was replaced or reset,
// so one student cannot drive an exam from two devices. A failed lookup is
// reported as unavailable rather than as a logout. Admin tokens pass through.
func RequireActiveLogin(logins LoginValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if claims.TokenType != service.TokenTypeStudent {
			c.Next()
			return
		}

		err := logins.ValidateStudentSession(c.Request.Context(), claims.UserID, claims.ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrSessionInvalidated), errors.Is(err, service.ErrNoActiveLogin):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrLoginCheckUnavailable)
		}
	}
}
