package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the authenticated principal resolved from a credential or token.
type Identity struct {
	ID    uuid.UUID
	Name  string
	Email string
}

func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Authenticated reports whether the identity carries a user id.
func (i Identity) Authenticated() bool {
	return i.ID != uuid.Nil
}
