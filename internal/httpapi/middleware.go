package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"authd/internal/apperr"
	"authd/internal/scope"
)

const (
	headerClientID    = "x-client-id"
	headerRequestID   = "x-request-id"
	headerAttestation = "x-client-attestation"

	principalKey = "principal"
)

// Principal is the authenticated caller, decrypted from a verified access
// token and stored in the request context by the guard.
type Principal struct {
	UserID string
	Email  string
	Scope  scope.Scope
	Token  string
}

func principalFrom(c *gin.Context) *Principal {
	p, _ := c.MustGet(principalKey).(*Principal)
	return p
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			s.log.Error("request failed", append(attrs, "error", c.Errors.Last().Error())...)
			return
		}
		s.log.Info("request", attrs...)
	}
}

// cors allows the single configured browser origin, with credentials.
func (s *Server) cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.corsOrigin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers",
			"Content-Type, Authorization, x-platform, x-client-id, x-request-id, x-client-attestation")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// throttle charges weight units against the caller's IP window.
func (s *Server) throttle(weight int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.limiter.Allow(c.Request.Context(), c.ClientIP(), weight); err != nil {
			respondErr(c, err)
			return
		}
		c.Next()
	}
}

// guard authenticates the caller and enforces a minimum scope. required nil
// means any valid token passes. The verified-but-still-encrypted claims are
// decrypted here once; handlers downstream read the Principal.
func (s *Server) guard(required *scope.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := accessTokenFrom(c)
		if raw == "" {
			respondErr(c, apperr.Unauthorized("authentication required"))
			return
		}

		claims, err := s.tokens.VerifyAccess(c.Request.Context(), raw)
		if err != nil {
			respondErr(c, err)
			return
		}
		userID, email, err := s.tokens.DecryptAccess(claims)
		if err != nil {
			respondErr(c, err)
			return
		}

		// Distinct message from the missing-token case: the caller is
		// logged in, just not privileged enough.
		if !scope.Allows(required, claims.Scope) {
			respondErr(c, apperr.Unauthorized("insufficient scope"))
			return
		}

		// Authenticated traffic is throttled by identity, not address.
		if err := s.userLimiter.Allow(c.Request.Context(), "user-"+userID, 1); err != nil {
			respondErr(c, err)
			return
		}

		c.Set(principalKey, &Principal{
			UserID: userID,
			Email:  email,
			Scope:  claims.Scope,
			Token:  raw,
		})
		c.Next()
	}
}

// attestGate verifies the device assertion on sensitive unauthenticated
// endpoints for mobile callers. Web callers pass through untouched; their
// defense is the browser origin policy plus the throttle.
func (s *Server) attestGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMobile(c) || s.attester.Bypass() {
			c.Next()
			return
		}

		clientID := c.GetHeader(headerClientID)
		requestID := c.GetHeader(headerRequestID)
		header := c.GetHeader(headerAttestation)
		if clientID == "" || requestID == "" || header == "" {
			respondErr(c, apperr.Unauthorized("attestation required"))
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			respondErr(c, apperr.BadRequest("unreadable request body"))
			return
		}
		// The handler still needs the body after the gate consumed it.
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if err := s.attester.VerifyRequest(c.Request.Context(), clientID, requestID, header, body); err != nil {
			respondErr(c, err)
			return
		}
		c.Next()
	}
}
