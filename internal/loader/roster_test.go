package loader

import (
	"testing"

	"adsum/internal/domain"
)

func TestParseRoster(t *testing.T) {
	data := []byte(`
users:
  - name: Ada Lovelace
    role: mentor
    mac: aa:bb:cc:dd:ee:01
  - id: badge-17
    name: Grace Hopper
    role: student
    mac: AA-BB-CC-DD-EE-02
`)

	users, err := ParseRoster(data)
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}

	if users[0].Role != domain.RoleMentor {
		t.Errorf("role = %s, want Mentor", users[0].Role)
	}
	if users[0].MAC != "AA:BB:CC:DD:EE:01" {
		t.Errorf("MAC not normalized: %s", users[0].MAC)
	}
	if users[0].ID == "" {
		t.Error("missing id should be derived from name")
	}

	if users[1].ID != "badge-17" {
		t.Errorf("explicit id lost: %s", users[1].ID)
	}
	if users[1].MAC != "AA:BB:CC:DD:EE:02" {
		t.Errorf("hyphen MAC not normalized: %s", users[1].MAC)
	}
}

func TestParseRosterRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "bad role",
			data: "users:\n  - name: X\n    role: wizard\n    mac: aa:bb:cc:dd:ee:01\n",
		},
		{
			name: "bad mac",
			data: "users:\n  - name: X\n    role: student\n    mac: nope\n",
		},
		{
			name: "duplicate mac",
			data: "users:\n" +
				"  - name: X\n    role: student\n    mac: aa:bb:cc:dd:ee:01\n" +
				"  - name: Y\n    role: student\n    mac: AA:BB:CC:DD:EE:01\n",
		},
		{
			name: "missing name",
			data: "users:\n  - role: student\n    mac: aa:bb:cc:dd:ee:01\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRoster([]byte(tt.data)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestParseRosterEmpty(t *testing.T) {
	users, err := ParseRoster([]byte("users: []\n"))
	if err != nil {
		t.Fatalf("ParseRoster: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected no users, got %d", len(users))
	}
}
