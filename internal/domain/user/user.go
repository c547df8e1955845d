package user

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCoach   Role = "coach"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoach, RoleStudent:
		return true
	}
	return false
}

// SyncsWithDirectory reports whether accounts of this role are mirrored in the
// external user directory.
func (r Role) SyncsWithDirectory() bool {
	return r == RoleCoach || r == RoleStudent
}

// Title is the capitalised role name used in user-facing messages.
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash,omitempty"`
	// LegacyPassword holds plaintext from stores written before hashing was
	// introduced. It is cleared the first time the record is rewritten.
	LegacyPassword string    `json:"password,omitempty"`
	Role           Role      `json:"role"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	ExternalID     string    `json:"externalId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// Public is the view of a user that may leave the process.
type Public struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Role       Role      `json:"role"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ExternalID string    `json:"externalId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (u User) ToPublic() Public {
	return Public{
		ID:         u.ID,
		Username:   u.Username,
		Role:       u.Role,
		Email:      u.Email,
		Name:       u.Name,
		ExternalID: u.ExternalID,
		CreatedAt:  u.CreatedAt,
	}
}
