// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 64
)

var (
	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type UserID string

// UserRef is an identity snapshot taken once at the signaling boundary.
// It is never re-fetched or re-shaped during a call.
type UserRef struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef,omitempty"`
}

// NewUserRef is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUserRef(id, displayName, avatarRef string) (UserRef, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return UserRef{}, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return UserRef{}, ErrUserIDTooLong
	}
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > MaxDisplayNameLen {
		return UserRef{}, ErrDisplayNameTooLong
	}
	if displayName == "" {
		displayName = id
	}
	return UserRef{ID: UserID(id), DisplayName: displayName, AvatarRef: avatarRef}, nil
}

func (u UserRef) IsZero() bool { return u.ID == "" }
