package middleware

// participant.go resolves the anonymous participant id for each
// request. Participants are not accounts: authentication proper is an
// external collaborator. When a signed participant token is presented
// its subject wins; otherwise the X-Participant-ID header is trusted
// as-is, and "anon" is the fallback. The resolved id feeds the rate
// limiter's per-participant dimension.

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const participantContextKey = "participant_id"

// Participant returns middleware that stores the resolved participant
// id in the Echo context. secret may be empty, in which case bearer
// tokens are ignored entirely.
func Participant(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(participantContextKey, resolveParticipant(c, secret))
			return next(c)
		}
	}
}

func resolveParticipant(c echo.Context, secret string) string {
	if secret != "" {
		auth := c.Request().Header.Get("Authorization")
		if raw, ok := strings.CutPrefix(auth, "Bearer "); ok {
			if sub := tokenSubject(raw, secret); sub != "" {
				return sub
			}
		}
	}
	if v := c.Request().Header.Get("X-Participant-ID"); v != "" {
		return v
	}
	return "anon"
}

// tokenSubject verifies an HMAC-signed participant token and returns
// its subject, or "" when the token is invalid.
func tokenSubject(raw, secret string) string {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return ""
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

// currentParticipantID reads the resolved id back out of the context.
// Used by the rate limiter's key builder.
func currentParticipantID(c echo.Context) string {
	if v, ok := c.Get(participantContextKey).(string); ok && v != "" {
		return v
	}
	return "anon"
}
