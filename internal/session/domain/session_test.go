package domain

import (
	"testing"
	"time"
)

func TestDeviceSession_Expiry(t *testing.T) {
	now := time.Now()
	s := &DeviceSession{ExpiresAt: now.Add(time.Hour), AccessExpiresAt: now.Add(-time.Second)}
	if s.Expired(now) {
		t.Error("Expired = true, want false")
	}
	if !s.AccessExpired(now) {
		t.Error("AccessExpired = false, want true")
	}
	if !s.Expired(now.Add(time.Hour)) {
		t.Error("session should be expired exactly at ExpiresAt")
	}
}

func TestDeviceSession_CloneDropsPlaintext(t *testing.T) {
	s := &DeviceSession{ID: "s1", Grants: []string{"a"}, AccessToken: "at", RefreshToken: "rt"}
	c := s.Clone()
	if c.AccessToken != "" || c.RefreshToken != "" {
		t.Error("Clone kept plaintext tokens")
	}
	c.Grants[0] = "b"
	if s.Grants[0] != "a" {
		t.Error("Clone shares the grants slice")
	}
	if !s.HasGrant("a") || s.HasGrant("b") {
		t.Error("HasGrant mismatch")
	}
}
