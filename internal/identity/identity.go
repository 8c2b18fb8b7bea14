// Package identity derives the local user from the signaling token.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Dial/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken   = errors.New("signaling token is required")
	ErrNoSubject = errors.New("token has no subject")
)

// Claims is the token shape issued by the signaling server. The user id is
// the subject; the display name may come from any of the name claims.
type Claims struct {
	jwt.RegisteredClaims

	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// FromToken reads the local user from token. The signature is not checked
// here: the server that issued the token verifies it on connect. Expiry is
// still enforced so an expired token fails at startup instead of on dial.
// displayName, when set, overrides the token's name claims.
func FromToken(token, displayName string, now time.Time) (domain.UserRef, error) {
	if token == "" {
		return domain.UserRef{}, ErrNoToken
	}
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return domain.UserRef{}, fmt.Errorf("parse token: %w", err)
	}

	validator := jwt.NewValidator(
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30*time.Second),
	)
	if err := validator.Validate(claims); err != nil {
		return domain.UserRef{}, fmt.Errorf("validate token: %w", err)
	}
	if claims.Subject == "" {
		return domain.UserRef{}, ErrNoSubject
	}

	name := displayName
	if name == "" {
		name = firstNonEmpty(claims.DisplayName, claims.Name, claims.Username)
	}
	ref, err := domain.NewUserRef(claims.Subject, name, claims.Avatar)
	if err != nil {
		return domain.UserRef{}, fmt.Errorf("token subject: %w", err)
	}
	return ref, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
