package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var handlePattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

type (
	User struct {
		ID           uuid.UUID    `json:"id"`
		Handle       string       `json:"handle"`
		IdentityKey  []byte       `json:"identity_key"`
		SignedPrekey SignedPrekey `json:"signed_prekey"`
		CreatedAt    time.Time    `json:"created_at"`
	}

	// Profile is the public view of a user, without prekey material.
	Profile struct {
		ID          uuid.UUID `json:"id"`
		Handle      string    `json:"handle"`
		IdentityKey []byte    `json:"identity_key"`
	}
)

// NormalizeHandle lower-cases and trims h. Handles are compared normalized.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func ValidHandle(h string) bool {
	return len(h) <= 254 && handlePattern.MatchString(h)
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Handle: u.Handle, IdentityKey: u.IdentityKey}
}
