package models

import "github.com/google/uuid"

// User is an authenticated identity. Ephemeral users are minted on the fly
// for guests joining through an activity channel; registered users carry a
// password hash in the database.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	AvatarURL   string `json:"avatar_url"`
	IsEphemeral bool   `json:"is_ephemeral"`
}
