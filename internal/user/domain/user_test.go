package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUser_Validate(t *testing.T) {
	if err := (&User{Email: " ", PasswordHash: "h"}).Validate(); err == nil {
		t.Error("Validate with blank email should fail")
	}
	if err := (&User{Email: "a@b.c"}).Validate(); err == nil {
		t.Error("Validate without hash should fail")
	}
	if err := (&User{Email: "a@b.c", PasswordHash: "h"}).Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestUser_ProfileOmitsHash(t *testing.T) {
	u := &User{ID: "u1", Name: "Ann", Email: "ann@example.com", PasswordHash: "$2a$secret"}
	b, err := json.Marshal(u.Profile(nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(b), "secret") {
		t.Errorf("profile JSON leaks hash: %s", b)
	}
	if !strings.Contains(string(b), `"grants":[]`) {
		t.Errorf("profile JSON should carry empty grants, got %s", b)
	}
}
