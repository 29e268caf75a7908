package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"authd/internal/apperr"
	"authd/internal/emailaddr"
	"authd/internal/storage"
)

// resetTokenTTL bounds how long a reset link stays usable.
const resetTokenTTL = 24 * time.Hour

// resetRequestResponse never varies with account existence: the endpoint
// must not be an oracle for registered addresses.
const resetRequestResponse = "if an account exists for that address, a reset email has been sent"

type passwordResetRequestBody struct {
	Email string `json:"email" binding:"required"`
}

func (s *Server) passwordResetRequest(c *gin.Context) {
	var req passwordResetRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("email is required"))
		return
	}

	ctx := c.Request.Context()
	email := emailaddr.Normalize(req.Email)

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("load user for reset", "error", err)
		}
		respondMessage(c, http.StatusOK, resetRequestResponse)
		return
	}

	attempts, err := s.store.PasswordResetAttempts(ctx, email)
	if err != nil {
		respondErr(c, apperr.Internal("load reset counter", err))
		return
	}
	if attempts >= s.resetLimit {
		// Same generic answer; the cap only stops the outbound mail.
		s.log.Warn("password reset cap reached", "email", email)
		respondMessage(c, http.StatusOK, resetRequestResponse)
		return
	}
	if err := s.store.SetPasswordResetAttempts(ctx, email, attempts+1); err != nil {
		respondErr(c, apperr.Internal("bump reset counter", err))
		return
	}

	resetToken, err := s.tokens.SignReset(user.UserID, email, resetTokenTTL, time.Now())
	if err != nil {
		respondErr(c, apperr.Internal("sign reset token", err))
		return
	}
	if err := s.mail.SendPasswordReset(ctx, email, resetToken); err != nil {
		s.log.Error("send password reset", "email", email, "error", err)
	}

	respondMessage(c, http.StatusOK, resetRequestResponse)
}

// passwordResetValidate checks a reset token without consuming it, so the
// client can gate its form before the user types a new password.
func (s *Server) passwordResetValidate(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		respondErr(c, apperr.BadRequest("token is required"))
		return
	}

	claims, err := s.tokens.VerifyReset(raw)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"valid": true, "email": claims.Email})
}

type passwordResetConfirmBody struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (s *Server) passwordResetConfirm(c *gin.Context) {
	var req passwordResetConfirmBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("token and new password are required"))
		return
	}
	if err := validPassword(req.NewPassword); err != nil {
		respondErr(c, err)
		return
	}

	claims, err := s.tokens.VerifyReset(req.Token)
	if err != nil {
		respondErr(c, err)
		return
	}
	userID, err := s.tokens.DecryptResetSubject(claims)
	if err != nil {
		respondErr(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		// The account vanished since the token was minted.
		respondErr(c, apperr.Unauthorized("invalid or expired token"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		respondErr(c, apperr.Internal("hash password", err))
		return
	}
	user.Password = string(hash)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		respondErr(c, apperr.Internal("update password", err))
		return
	}

	// Every standing session predates the new password and dies with it.
	if err := s.sessions.TerminateAll(ctx, userID); err != nil {
		respondErr(c, apperr.Internal("terminate sessions", err))
		return
	}

	respondMessage(c, http.StatusOK, "password updated")
}
