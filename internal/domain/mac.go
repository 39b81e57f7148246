package domain

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrInvalidMAC is returned when a string cannot be parsed as a 48-bit
// hardware address.
var ErrInvalidMAC = errors.New("invalid hardware address")

// NormalizeMAC converts a hardware address to its canonical form:
// six octets, uppercase, colon-separated. Hyphen and dot notations are
// accepted on input.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMAC, s)
	}
	return strings.ToUpper(hw.String()), nil
}
