package security

import "testing"

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Abcde.123!!", false},
		{"too short", "abcd", true},
		{"short with all classes", "Ab1.", true},
		{"no upper", "abcde.123!!", true},
		{"no lower", "ABCDE.123!!", true},
		{"no digit", "Abcde.xyz!!", true},
		{"no symbol", "Abcde12345", true},
		{"exactly min length", "Abcd12.!", false},
		{"multi-byte below min length", "Ab1.éé", true},
		{"multi-byte at min length", "Ab1.éééé", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestGeneratePassword_SatisfiesPolicy(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := GeneratePassword(12)
		if err != nil {
			t.Fatalf("GeneratePassword: %v", err)
		}
		if len(p) != 12 {
			t.Fatalf("len = %d, want 12", len(p))
		}
		if err := ValidatePassword(p); err != nil {
			t.Fatalf("generated password %q fails policy: %v", p, err)
		}
		seen[p] = true
	}
	if len(seen) < 50 {
		t.Errorf("expected 50 distinct passwords, got %d", len(seen))
	}
}

func TestGeneratePassword_RaisesShortLength(t *testing.T) {
	p, err := GeneratePassword(2)
	if err != nil {
		t.Fatalf("GeneratePassword: %v", err)
	}
	if len(p) != MinPasswordLength {
		t.Errorf("len = %d, want %d", len(p), MinPasswordLength)
	}
}
