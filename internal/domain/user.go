package domain

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Role classifies a registered user.
type Role string

const (
	RoleStudent Role = "Student"
	RoleMentor  Role = "Mentor"
	RoleOther   Role = "Other"
)

var (
	// ErrInvalidRole is returned when a role string does not match any
	// known role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidUserID is returned when a user id fails pattern
	// validation. Malformed ids are rejected before any state mutation.
	ErrInvalidUserID = errors.New("invalid user id")
)

// userIDPattern admits standard-base64 derived ids as well as typical
// badge or handle style identifiers.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9+/=_.-]{1,64}$`)

// ParseRole maps a role string to its canonical Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, nil
	case "mentor":
		return RoleMentor, nil
	case "other":
		return RoleOther, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// User is the persistent identity of a registered person. The MAC address
// is stored in canonical form and links the person to a physical device.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	MAC       string    `json:"mac"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser builds a validated user. The MAC is normalized; an empty id is
// derived from the name.
func NewUser(id, name string, role Role, mac string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name is required")
	}

	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	canonical, err := NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	if id == "" {
		id = DeriveUserID(name)
	}
	if err := ValidateUserID(id); err != nil {
		return nil, err
	}

	return &User{
		ID:        id,
		Name:      name,
		Role:      role,
		MAC:       canonical,
		CreatedAt: time.Now(),
	}, nil
}

// DeriveUserID produces the stable external identifier for a name.
func DeriveUserID(name string) string {
	return base64.StdEncoding.EncodeToString([]byte(name))
}

// ValidateUserID checks an externally supplied identifier against the
// allowed pattern.
func ValidateUserID(id string) error {
	if !userIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, id)
	}
	return nil
}
