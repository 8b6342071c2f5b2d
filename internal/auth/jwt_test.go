package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("alice", RoleModerator)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UserID != "alice" {
		t.Errorf("expected user alice, got %s", claims.UserID)
	}
	if claims.Role != RoleModerator {
		t.Errorf("expected role %s, got %s", RoleModerator, claims.Role)
	}
}

func TestGenerateDefaultsToBuyer(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.Generate("bob", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.Role != RoleBuyer {
		t.Errorf("expected role %s, got %s", RoleBuyer, claims.Role)
	}

	if _, err := m.Generate("", RoleBuyer); err == nil {
		t.Error("expected error for empty user ID")
	}
}

func TestValidateRejects(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)
	good, err := m.Generate("alice", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	other, err := NewJWTManager("other-secret", time.Hour).Generate("alice", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	expired, err := NewJWTManager("test-secret", -time.Minute).Generate("alice", "")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", other},
		{"expired", expired},
		{"tampered", good + "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Validate(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}
