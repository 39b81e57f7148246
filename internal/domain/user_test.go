package domain

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		input   string
		want    Role
		wantErr bool
	}{
		{"Student", RoleStudent, false},
		{"student", RoleStudent, false},
		{"MENTOR", RoleMentor, false},
		{"other", RoleOther, false},
		{"", "", true},
		{"janitor", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRole(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRole) {
					t.Errorf("expected ErrInvalidRole for %q, got %v", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewUser(t *testing.T) {
	t.Run("derives id and normalizes mac", func(t *testing.T) {
		user, err := NewUser("", "Alice", RoleStudent, "aa-bb-cc-dd-ee-ff")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != "QWxpY2U=" {
			t.Errorf("expected derived id 'QWxpY2U=', got %q", user.ID)
		}
		if user.MAC != "AA:BB:CC:DD:EE:FF" {
			t.Errorf("expected canonical mac, got %q", user.MAC)
		}
		if user.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("keeps explicit id", func(t *testing.T) {
		user, err := NewUser("badge-042", "Bob", RoleMentor, "AA:BB:CC:DD:EE:01")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID != "badge-042" {
			t.Errorf("expected id 'badge-042', got %q", user.ID)
		}
	})

	t.Run("rejects blank name", func(t *testing.T) {
		if _, err := NewUser("", "   ", RoleStudent, "AA:BB:CC:DD:EE:02"); err == nil {
			t.Error("expected error for blank name")
		}
	})

	t.Run("rejects bad mac", func(t *testing.T) {
		_, err := NewUser("", "Carol", RoleStudent, "zz:zz")
		if !errors.Is(err, ErrInvalidMAC) {
			t.Errorf("expected ErrInvalidMAC, got %v", err)
		}
	})

	t.Run("rejects bad role", func(t *testing.T) {
		_, err := NewUser("", "Dave", Role("Visitor"), "AA:BB:CC:DD:EE:03")
		if !errors.Is(err, ErrInvalidRole) {
			t.Errorf("expected ErrInvalidRole, got %v", err)
		}
	})

	t.Run("rejects malformed explicit id", func(t *testing.T) {
		_, err := NewUser("no spaces allowed", "Eve", RoleOther, "AA:BB:CC:DD:EE:04")
		if !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("expected ErrInvalidUserID, got %v", err)
		}
	})
}

func TestValidateUserID(t *testing.T) {
	valid := []string{"QWxpY2U=", "badge-042", "a", "x_y.z", "AB+CD/EF=="}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("expected %q to validate, got %v", id, err)
		}
	}

	invalid := []string{"", "has space", "semi;colon", "tab\tchar", string(make([]byte, 65))}
	for _, id := range invalid {
		if err := ValidateUserID(id); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("expected ErrInvalidUserID for %q, got %v", id, err)
		}
	}
}

func TestLoginRecordOpen(t *testing.T) {
	rec := &LoginRecord{LoginID: 1, UserID: "u1"}
	if !rec.Open() {
		t.Error("expected record without logout time to be open")
	}
	now := rec.LoginTime
	rec.LogoutTime = &now
	if rec.Open() {
		t.Error("expected record with logout time to be closed")
	}
}
