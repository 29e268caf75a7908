package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"authd/internal/apperr"
	"authd/internal/kv"
)

type challengeRequest struct {
	ClientID  string `json:"clientId" binding:"required"`
	RequestID string `json:"requestId" binding:"required"`
}

func (s *Server) attestationChallenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("clientId and requestId are required"))
		return
	}

	challenge, err := s.attester.Challenge(c.Request.Context(), req.ClientID, req.RequestID)
	if err != nil {
		respondErr(c, apperr.Internal("issue challenge", err))
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"challenge":        challenge,
		"expiresInSeconds": int(kv.AttestationNonceTTL.Seconds()),
	})
}

type registerKeyRequest struct {
	ClientID  string `json:"clientId" binding:"required"`
	PublicKey string `json:"publicKey" binding:"required"`
}

func (s *Server) registerAppAttestKey(c *gin.Context) {
	var req registerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, apperr.BadRequest("clientId and publicKey are required"))
		return
	}

	if err := s.attester.RegisterKey(c.Request.Context(), req.ClientID, req.PublicKey); err != nil {
		respondErr(c, err)
		return
	}
	respondMessage(c, http.StatusOK, "device key registered")
}
