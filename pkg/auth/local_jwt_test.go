package auth

import (
	"testing"
	"time"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc.def", "abc.def", false},
		{"bearer abc", "abc", false},
		{"", "", true},
		{"Basic abc", "", true},
		{"Bearer   ", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("ExtractToken(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestGenerateAndVerify(t *testing.T) {
	a, err := NewLocalJWTAuth("secret", time.Hour)
	if err != nil {
		t.Fatalf("NewLocalJWTAuth failed: %v", err)
	}

	token, expiresAt, err := a.GenerateToken("grandma", []string{"nursery"})
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expected future expiry, got %v", expiresAt)
	}

	viewer, err := a.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken failed: %v", err)
	}
	if viewer.Subject != "grandma" {
		t.Errorf("expected subject grandma, got %q", viewer.Subject)
	}
	if !viewer.CanView("nursery") || viewer.CanView("kitchen") {
		t.Errorf("unexpected room scope %v", viewer.Rooms)
	}
}

func TestVerify_Rejects(t *testing.T) {
	a, _ := NewLocalJWTAuth("secret", time.Hour)
	other, _ := NewLocalJWTAuth("other-secret", time.Hour)

	token, _, _ := other.GenerateToken("mallory", nil)
	if _, err := a.VerifyAccessToken(token); err == nil {
		t.Error("expected token signed with another secret to be rejected")
	}

	expired := &LocalJWTAuth{SecretKey: []byte("secret"), TokenExpiry: -time.Minute}
	token, _, _ = expired.GenerateToken("late", nil)
	if _, err := a.VerifyAccessToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}

	if _, err := a.VerifyAccessToken("not-a-jwt"); err == nil {
		t.Error("expected garbage to be rejected")
	}
}

func TestNewLocalJWTAuth(t *testing.T) {
	if _, err := NewLocalJWTAuth("", time.Hour); err == nil {
		t.Error("expected error for empty secret")
	}
	a, _ := NewLocalJWTAuth("s", 0)
	if a.TokenExpiry != 30*24*time.Hour {
		t.Errorf("expected default expiry, got %v", a.TokenExpiry)
	}
	if _, _, err := a.GenerateToken("", nil); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestViewer_CanViewAll(t *testing.T) {
	v := &Viewer{Subject: "admin"}
	if !v.CanView("anything") {
		t.Error("unscoped viewer should see every room")
	}
}
