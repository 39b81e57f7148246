// Package loader imports a versioned roster file, so a team can check
// users into git instead of registering them one by one through the
// form.
package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"adsum/internal/domain"
)

// RosterYAML represents the roster file structure:
//
//	users:
//	  - name: Ada Lovelace
//	    role: mentor
//	    mac: aa:bb:cc:dd:ee:ff
type RosterYAML struct {
	Users []UserYAML `yaml:"users"`
}

// UserYAML represents one roster entry. ID is optional; a missing id is
// derived from the name.
type UserYAML struct {
	ID   string `yaml:"id,omitempty"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
	MAC  string `yaml:"mac"`
}

// LoadRoster loads and validates users from a YAML roster file.
func LoadRoster(path string) ([]*domain.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster parses users from YAML bytes. Every entry must validate;
// a single bad entry rejects the whole file so a typo never silently
// drops a person from attendance.
func ParseRoster(data []byte) ([]*domain.User, error) {
	var roster RosterYAML
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	users := make([]*domain.User, 0, len(roster.Users))
	macs := make(map[string]string)

	for i, entry := range roster.Users {
		role, err := domain.ParseRole(entry.Role)
		if err != nil {
			return nil, fmt.Errorf("roster entry %d (%s): %w", i+1, entry.Name, err)
		}
		user, err := domain.NewUser(entry.ID, entry.Name, role, entry.MAC)
		if err != nil {
			return nil, fmt.Errorf("roster entry %d (%s): %w", i+1, entry.Name, err)
		}
		if other, dup := macs[user.MAC]; dup {
			return nil, fmt.Errorf("roster entry %d (%s): MAC %s already used by %s",
				i+1, entry.Name, user.MAC, other)
		}
		macs[user.MAC] = user.Name
		users = append(users, user)
	}

	return users, nil
}
