// Package httpapi is the HTTP boundary of the service: routing, transport
// middleware, credential delivery, and the translation between the error
// taxonomy and status codes. All domain decisions live in the packages it
// composes.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"authd/internal/attest"
	"authd/internal/kv"
	"authd/internal/mailer"
	"authd/internal/ratelimit"
	"authd/internal/scope"
	"authd/internal/session"
	"authd/internal/storage"
	"authd/internal/token"
)

// Options carries every collaborator the server composes.
type Options struct {
	Log      *slog.Logger
	Users    storage.Users
	Sessions *session.Manager
	Tokens   *token.Service
	Store    *kv.Store
	Mail     *mailer.Service
	Attester *attest.Service

	// Limiter throttles anonymous traffic by IP; UserLimiter throttles
	// authenticated traffic by user id with a higher quota.
	Limiter     *ratelimit.Limiter
	UserLimiter *ratelimit.Limiter
	Lockout     *ratelimit.Lockout

	CORSOrigin    string
	SecureCookies bool

	// ResetRequestLimit caps password-reset emails per address per window;
	// CodeAttemptLimit bounds verification-code issuances and failed checks.
	ResetRequestLimit int
	CodeAttemptLimit  int
}

// Server wires handlers to their collaborators.
type Server struct {
	log         *slog.Logger
	users       storage.Users
	sessions    *session.Manager
	tokens      *token.Service
	store       *kv.Store
	mail        *mailer.Service
	attester    *attest.Service
	limiter     *ratelimit.Limiter
	userLimiter *ratelimit.Limiter
	lockout     *ratelimit.Lockout

	corsOrigin    string
	secureCookies bool
	resetLimit    int
	codeLimit     int
}

// NewServer builds the HTTP boundary.
func NewServer(opts Options) *Server {
	return &Server{
		log:           opts.Log,
		users:         opts.Users,
		sessions:      opts.Sessions,
		tokens:        opts.Tokens,
		store:         opts.Store,
		mail:          opts.Mail,
		attester:      opts.Attester,
		limiter:       opts.Limiter,
		userLimiter:   opts.UserLimiter,
		lockout:       opts.Lockout,
		corsOrigin:    opts.CORSOrigin,
		secureCookies: opts.SecureCookies,
		resetLimit:    opts.ResetRequestLimit,
		codeLimit:     opts.CodeAttemptLimit,
	}
}

// Router assembles the route table. Credential-issuing endpoints sit behind
// the throttle and, for mobile clients, the attestation gate; everything
// touching an existing session goes through the guard.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.cors())

	api := r.Group("/api")

	api.POST("/register-account", s.throttle(1), s.attestGate(), s.registerAccount)
	api.POST("/login", s.throttle(1), s.attestGate(), s.login)
	api.POST("/refresh", s.throttle(1), s.refresh)
	api.POST("/logout", s.guard(scope.Require(scope.Unverified)), s.logout)

	api.POST("/verify-email", s.guard(scope.Require(scope.Unverified)), s.verifyEmail)
	api.POST("/resend-verify-email", s.guard(scope.Require(scope.Unverified)), s.resendVerifyEmail)

	reset := api.Group("/password-reset")
	reset.POST("/request", s.throttle(1), s.attestGate(), s.passwordResetRequest)
	reset.GET("/validate", s.throttle(1), s.passwordResetValidate)
	reset.POST("/confirm", s.throttle(1), s.attestGate(), s.passwordResetConfirm)

	api.DELETE("/delete-account", s.guard(scope.Require(scope.Unverified)), s.deleteAccount)

	// Attestation bootstrap is expensive to brute-force by design: each hit
	// charges ten units of the window.
	api.POST("/attestation-challenge", s.throttle(10), s.attestationChallenge)
	api.POST("/register-app-attest-key", s.throttle(10), s.registerAppAttestKey)

	api.GET("/status", s.guard(nil), s.status)

	return r
}
