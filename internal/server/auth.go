package server

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aohanesian/alpha-date-automation-depl-sub000/internal/platform"
)

const sessionCookie = "session_id"

// identity is the resolved caller of a control-plane or stream request.
type identity struct {
	SessionID string
	Email     string
	creds     platform.Credentials
}

// identify resolves the caller from the session cookie or bearer token.
// A bare token with no session yet opportunistically seeds a session record
// from the token's claims and sets the cookie. Returns false after writing
// the error response.
func (s *Service) identify(w http.ResponseWriter, r *http.Request) (identity, bool) {
	token := bearerToken(r)
	creds := platform.Credentials{
		Token:           token,
		ClearanceCookie: r.Header.Get("X-Clearance"),
	}

	var sessionID string
	if c, err := r.Cookie(sessionCookie); err == nil {
		sessionID = c.Value
	}

	if sessionID != "" {
		if rec, ok := s.states.Session(sessionID); ok {
			s.states.Touch(sessionID)
			return identity{SessionID: sessionID, Email: rec.OperatorEmail, creds: creds}, true
		}
	}

	if token != "" {
		email := emailFromToken(token)
		if email == "" {
			writeError(w, http.StatusUnauthorized, "token carries no operator email")
			return identity{}, false
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		s.states.SetSession(sessionID, email)
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		log.Debug().Str("sessionId", sessionID).Str("email", email).Msg("Session seeded from token")
		return identity{SessionID: sessionID, Email: email, creds: creds}, true
	}

	writeError(w, http.StatusUnauthorized, "authentication required")
	return identity{}, false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// emailFromToken decodes the payload segment of a JWT-shaped token without
// verifying it; verification belongs to the login subsystem.
func emailFromToken(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Email
}
