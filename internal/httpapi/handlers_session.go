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

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("email and password are required"))
		return
	}

	ctx := c.Request.Context()
	email := emailaddr.Normalize(req.Email)

	// Lockout comes before credential checks so a locked identifier learns
	// nothing about password correctness.
	if err := s.lockout.Check(ctx, email); err != nil {
		respondErr(c, err)
		return
	}

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.failLogin(c, email)
			return
		}
		respondErr(c, apperr.Internal("load user", err))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		s.failLogin(c, email)
		return
	}
	if !user.IsActive {
		respondErr(c, apperr.Forbidden("account disabled"))
		return
	}

	if err := s.lockout.Reset(ctx, email); err != nil {
		s.log.Warn("reset lockout counter", "email", email, "error", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		respondErr(c, apperr.Internal("issue credentials", err))
		return
	}
	s.deliverTokens(c, http.StatusOK, pair, gin.H{"user": userPayload(user)})
}

// failLogin counts the failure and answers with the same message regardless
// of whether the account exists.
func (s *Server) failLogin(c *gin.Context, email string) {
	if err := s.lockout.RecordFailure(c.Request.Context(), email); err != nil {
		s.log.Warn("record login failure", "email", email, "error", err)
	}
	respondErr(c, apperr.Unauthorized("invalid credentials"))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req) // body is optional for cookie clients

	raw := refreshTokenFrom(c, req.RefreshToken)
	if raw == "" {
		respondErr(c, apperr.Unauthorized("refresh token required"))
		return
	}

	ctx := c.Request.Context()
	fresh, user, err := s.sessions.Rotate(ctx, raw)
	if err != nil {
		respondErr(c, err)
		return
	}

	access, exp, err := s.tokens.SignAccess(user.UserID, user.Email, user.Scope, time.Now())
	if err != nil {
		respondErr(c, apperr.Internal("issue credentials", err))
		return
	}
	s.deliverTokens(c, http.StatusOK, tokenPair{
		AccessToken:  access,
		AccessExpiry: exp,
		RefreshToken: fresh,
		RefreshTTL:   s.sessions.RefreshTTL(),
	}, gin.H{"user": userPayload(user)})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) logout(c *gin.Context) {
	var req logoutRequest
	_ = c.ShouldBindJSON(&req) // body is optional for cookie clients

	p := principalFrom(c)
	ctx := c.Request.Context()

	if err := s.tokens.Revoke(ctx, p.Token); err != nil {
		s.log.Warn("revoke access token on logout", "userId", p.UserID, "error", err)
	}

	message := "logged out"
	if raw := refreshTokenFrom(c, req.RefreshToken); raw != "" {
		existed, err := s.sessions.Terminate(ctx, raw)
		if err != nil {
			respondErr(c, apperr.Internal("terminate session", err))
			return
		}
		if !existed {
			message = "already logged out"
		}
	} else {
		// The refresh cookie is scoped to the refresh path and never sent
		// here; without the raw value, retire every session for the user.
		if err := s.sessions.TerminateAll(ctx, p.UserID); err != nil {
			respondErr(c, apperr.Internal("terminate sessions", err))
			return
		}
	}

	s.clearAuthCookies(c)
	respondMessage(c, http.StatusOK, message)
}
