package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"authd/internal/apperr"
	"authd/internal/emailaddr"
	"authd/internal/kv"
	"authd/internal/scope"
	"authd/internal/storage"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	// bcrypt truncates beyond 72 bytes; longer inputs are rejected rather
	// than silently weakened.
	maxPasswordLength = 72
)

func validPassword(password string) error {
	if len(password) < minPasswordLength {
		return apperr.BadRequest("password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return apperr.BadRequest("password must be at most 72 characters")
	}
	return nil
}

// cleanEmail normalizes and fully validates an address for registration.
// Login and reset paths normalize only; rejecting there would leak nothing
// useful and could lock out grandfathered addresses.
func (s *Server) cleanEmail(raw string) (string, error) {
	email := emailaddr.Normalize(raw)
	if err := emailaddr.Validate(email); err != nil {
		return "", err
	}
	return email, nil
}

func userPayload(u *storage.User) gin.H {
	return gin.H{
		"userId":      u.UserID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"scope":       u.Scope,
	}
}

func (s *Server) issuePair(ctx context.Context, u *storage.User) (tokenPair, error) {
	access, exp, err := s.tokens.SignAccess(u.UserID, u.Email, u.Scope, time.Now())
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := s.sessions.Issue(ctx, u.UserID)
	if err != nil {
		return tokenPair{}, err
	}
	return tokenPair{
		AccessToken:  access,
		AccessExpiry: exp,
		RefreshToken: refresh,
		RefreshTTL:   s.sessions.RefreshTTL(),
	}, nil
}

type registerRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

func (s *Server) registerAccount(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("email and password are required"))
		return
	}

	email, err := s.cleanEmail(req.Email)
	if err != nil {
		respondErr(c, err)
		return
	}
	if err := validPassword(req.Password); err != nil {
		respondErr(c, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		respondErr(c, apperr.Internal("hash password", err))
		return
	}

	ctx := c.Request.Context()
	user := &storage.User{
		UserID:      uuid.NewString(),
		Email:       email,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Password:    string(hash),
		Scope:       scope.Unverified,
		IsActive:    true,
	}
	if err := s.users.InsertUser(ctx, user); err != nil {
		respondErr(c, err)
		return
	}

	// Registration succeeds even if the first code email fails; the client
	// can hit resend-verify-email.
	if err := s.mail.SendVerificationCode(ctx, user.UserID, user.Email); err != nil {
		s.log.Warn("send verification code", "userId", user.UserID, "error", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		respondErr(c, apperr.Internal("issue credentials", err))
		return
	}
	s.deliverTokens(c, http.StatusCreated, pair, gin.H{"user": userPayload(user)})
}

type verifyEmailRequest struct {
	Code string `json:"code" binding:"required"`
}

func (s *Server) verifyEmail(c *gin.Context) {
	var req verifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("verification code is required"))
		return
	}

	p := principalFrom(c)
	ctx := c.Request.Context()

	// One counter covers issuances and failed checks alike; past the cap
	// every further guess is refused until the window expires.
	attempts, err := s.store.EmailVerificationAttempts(ctx, p.UserID)
	if err != nil {
		respondErr(c, apperr.Internal("load verification attempts", err))
		return
	}
	if attempts > s.codeLimit {
		respondErr(c, apperr.TooManyRequests("too many verification attempts"))
		return
	}

	stored, err := s.store.EmailVerificationCode(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			respondErr(c, apperr.BadRequest("verification code expired"))
			return
		}
		respondErr(c, apperr.Internal("load verification code", err))
		return
	}
	if strings.ToUpper(strings.TrimSpace(req.Code)) != stored {
		if err := s.store.SetEmailVerificationAttempts(ctx, p.UserID, attempts+1); err != nil {
			s.log.Warn("count failed verification check", "userId", p.UserID, "error", err)
		}
		respondErr(c, apperr.BadRequest("invalid verification code"))
		return
	}

	if err := s.store.DeleteEmailVerificationCode(ctx, p.UserID); err != nil {
		respondErr(c, apperr.Internal("consume verification code", err))
		return
	}
	if err := s.store.ResetEmailVerificationAttempts(ctx, p.UserID); err != nil {
		s.log.Warn("reset verification attempts", "userId", p.UserID, "error", err)
	}

	user, err := s.users.FindUserByID(ctx, p.UserID)
	if err != nil {
		respondErr(c, apperr.Internal("load user", err))
		return
	}
	if user.Scope == scope.Unverified {
		user.Scope = scope.User
		if err := s.users.UpdateUser(ctx, user); err != nil {
			respondErr(c, apperr.Internal("promote user", err))
			return
		}
	}

	// The presented token still carries the old scope; retire it and hand
	// out a pair reflecting the promotion.
	if err := s.tokens.Revoke(ctx, p.Token); err != nil {
		s.log.Warn("revoke pre-verification token", "userId", p.UserID, "error", err)
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		respondErr(c, apperr.Internal("issue credentials", err))
		return
	}
	s.deliverTokens(c, http.StatusOK, pair, gin.H{"user": userPayload(user)})
}

func (s *Server) resendVerifyEmail(c *gin.Context) {
	p := principalFrom(c)
	if p.Scope != scope.Unverified {
		respondErr(c, apperr.BadRequest("email already verified"))
		return
	}

	if err := s.mail.SendVerificationCode(c.Request.Context(), p.UserID, p.Email); err != nil {
		respondErr(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "verification code sent")
}

func (s *Server) deleteAccount(c *gin.Context) {
	p := principalFrom(c)
	ctx := c.Request.Context()

	if err := s.users.DeleteUser(ctx, p.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondErr(c, apperr.NotFound("account not found"))
			return
		}
		respondErr(c, apperr.Internal("delete account", err))
		return
	}
	if err := s.sessions.TerminateAll(ctx, p.UserID); err != nil {
		respondErr(c, apperr.Internal("terminate sessions", err))
		return
	}
	if err := s.tokens.Revoke(ctx, p.Token); err != nil {
		s.log.Warn("revoke token on account deletion", "userId", p.UserID, "error", err)
	}

	s.clearAuthCookies(c)
	respondMessage(c, http.StatusOK, "account deleted")
}

func (s *Server) status(c *gin.Context) {
	p := principalFrom(c)
	respondOK(c, http.StatusOK, gin.H{
		"userId":   p.UserID,
		"email":    p.Email,
		"scope":    p.Scope,
		"verified": p.Scope != scope.Unverified,
	})
}
