package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	accessCookieName  = "auth_token"
	refreshCookieName = "refresh_token"

	// The refresh cookie is scoped to the refresh endpoint alone; no other
	// route ever receives the long-lived credential. Logout therefore keys
	// session termination off the authenticated user, not this cookie.
	refreshCookiePath = "/api/refresh"

	headerPlatform = "x-platform"
	platformMobile = "mobile"
)

func isMobile(c *gin.Context) bool {
	return c.GetHeader(headerPlatform) == platformMobile
}

// tokenPair is what a successful authentication hands back.
type tokenPair struct {
	AccessToken  string
	AccessExpiry time.Time
	RefreshToken string
	RefreshTTL   time.Duration
}

// deliverTokens sends credentials the way the platform expects: mobile
// clients get them in the JSON body and manage storage themselves, web
// clients get HttpOnly cookies and never see the raw values in script.
// extra is merged into the mobile response body.
func (s *Server) deliverTokens(c *gin.Context, status int, pair tokenPair, extra gin.H) {
	if isMobile(c) {
		data := gin.H{
			"accessToken":          pair.AccessToken,
			"accessTokenExpiresAt": pair.AccessExpiry.UTC().Format(time.RFC3339),
			"refreshToken":         pair.RefreshToken,
		}
		for k, v := range extra {
			data[k] = v
		}
		respondOK(c, status, data)
		return
	}

	s.setCookie(c, accessCookieName, pair.AccessToken, "/", int(time.Until(pair.AccessExpiry).Seconds()))
	s.setCookie(c, refreshCookieName, pair.RefreshToken, refreshCookiePath, int(pair.RefreshTTL.Seconds()))
	if extra == nil {
		extra = gin.H{}
	}
	respondOK(c, status, extra)
}

func (s *Server) setCookie(c *gin.Context, name, value, path string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearAuthCookies expires both credentials on the client.
func (s *Server) clearAuthCookies(c *gin.Context) {
	s.setCookie(c, accessCookieName, "", "/", -1)
	s.setCookie(c, refreshCookieName, "", refreshCookiePath, -1)
}

// accessTokenFrom extracts the access token: Authorization bearer first,
// then the cookie. Mobile clients use the header exclusively.
func accessTokenFrom(c *gin.Context) string {
	const prefix = "Bearer "
	if auth := c.GetHeader("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	if cookie, err := c.Cookie(accessCookieName); err == nil {
		return cookie
	}
	return ""
}

// refreshTokenFrom extracts the raw refresh token: explicit body field
// first (mobile), then the cookie (web).
func refreshTokenFrom(c *gin.Context, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		return cookie
	}
	return ""
}
