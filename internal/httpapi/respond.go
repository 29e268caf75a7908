package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"authd/internal/apperr"
	"authd/internal/attest"
	"authd/internal/emailaddr"
	"authd/internal/mailer"
	"authd/internal/ratelimit"
	"authd/internal/session"
	"authd/internal/storage"
	"authd/internal/token"
)

// envelope is the uniform response shape. Success responses carry data;
// failures carry only a client-safe message.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{Success: true, Message: message})
}

// respondErr classifies err, normalizing well-known subsystem sentinels
// into the taxonomy first so handlers can pass them through untranslated.
func respondErr(c *gin.Context, err error) {
	err = classify(err)

	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindBadRequest:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindTooManyRequests:
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: apperr.MessageOf(err)})
}

func classify(err error) error {
	switch {
	case errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenRevoked),
		errors.Is(err, token.ErrTokenInvalid):
		return apperr.Unauthorized("invalid or expired token")
	case errors.Is(err, session.ErrRefreshExpired):
		return apperr.Unauthorized("refresh token expired")
	case errors.Is(err, session.ErrRefreshInvalid):
		return apperr.Unauthorized("invalid refresh token")
	case errors.Is(err, ratelimit.ErrRateLimited):
		return apperr.TooManyRequests("too many requests")
	case errors.Is(err, ratelimit.ErrLockedOut):
		return apperr.Forbidden("account temporarily locked")
	case errors.Is(err, mailer.ErrTooManyCodes):
		return apperr.TooManyRequests("verification code limit reached")
	case errors.Is(err, attest.ErrChallengeExpired):
		return apperr.Unauthorized("attestation challenge expired")
	case errors.Is(err, attest.ErrKeyNotEnrolled),
		errors.Is(err, attest.ErrAttestationInvalid):
		return apperr.Unauthorized("attestation failed")
	case errors.Is(err, attest.ErrBadKey):
		return apperr.BadRequest("invalid device public key")
	case errors.Is(err, emailaddr.ErrInvalid):
		return apperr.BadRequest("invalid email address")
	case errors.Is(err, emailaddr.ErrDisposable):
		return apperr.BadRequest("disposable email addresses are not allowed")
	case errors.Is(err, storage.ErrDuplicateEmail):
		return apperr.BadRequest("email already registered")
	}
	return err
}
