// Package identity defines the user record issued by the chat backend.
package identity

import "time"

// Identity is an authenticated user record. It is issued by the backend and
// never modified locally; profile changes replace the whole value with the
// server's copy.
type Identity struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName,omitempty"`
	Email      string    `json:"email,omitempty"`
	ProfilePic string    `json:"profilePic,omitempty"` // URL or data URL.
	CreatedAt  time.Time `json:"createdAt,omitzero"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// DisplayName returns the best human-readable label for the identity:
// full name, then email, then id.
func (i Identity) DisplayName() string {
	switch {
	case i.FullName != "":
		return i.FullName
	case i.Email != "":
		return i.Email
	default:
		return i.ID
	}
}
