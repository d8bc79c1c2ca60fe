package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the identity record. Only PasswordHash is mutated by this service.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Blocked      bool
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Profile is the public view of a user; it never carries the password hash.
type Profile struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Grants []string `json:"grants"`
}

// Profile returns the public view of u with the given grants.
func (u *User) Profile(grants []string) Profile {
	if grants == nil {
		grants = []string{}
	}
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, Grants: grants}
}
