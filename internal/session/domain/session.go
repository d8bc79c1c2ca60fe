package domain

import (
	"slices"
	"time"
)

// DeviceSession associates a user with a token pair and a grant snapshot.
// Tokens are persisted only as SHA-256 hashes; AccessToken and RefreshToken
// carry the plaintext values back to the caller right after issue.
type DeviceSession struct {
	ID               string    `bson:"_id" json:"id"`
	UserID           string    `bson:"userId" json:"user_id"`
	AccessTokenHash  string    `bson:"accessTokenHash" json:"access_token_hash"`
	RefreshTokenHash string    `bson:"refreshTokenHash" json:"refresh_token_hash"`
	Grants           []string  `bson:"grants" json:"grants"`
	IPAddress        string    `bson:"ipAddress,omitempty" json:"ip_address,omitempty"`
	UserAgent        string    `bson:"userAgent,omitempty" json:"user_agent,omitempty"`
	AccessExpiresAt  time.Time `bson:"accessExpiresAt" json:"access_expires_at"`
	ExpiresAt        time.Time `bson:"expiresAt" json:"expires_at"`
	CreatedAt        time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt        time.Time `bson:"updatedAt" json:"updated_at"`

	AccessToken  string `bson:"-" json:"-"`
	RefreshToken string `bson:"-" json:"-"`
}

// Expired reports whether the session (refresh token) has expired at now.
func (s *DeviceSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AccessExpired reports whether the current access token has expired at now.
func (s *DeviceSession) AccessExpired(now time.Time) bool {
	return !s.AccessExpiresAt.After(now)
}

// HasGrant reports whether code is in the session's grant snapshot.
func (s *DeviceSession) HasGrant(code string) bool {
	return slices.Contains(s.Grants, code)
}

// Clone returns a deep copy without plaintext tokens.
func (s *DeviceSession) Clone() *DeviceSession {
	c := *s
	c.Grants = slices.Clone(s.Grants)
	c.AccessToken = ""
	c.RefreshToken = ""
	return &c
}

// ClientMeta describes the client that created a session.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
