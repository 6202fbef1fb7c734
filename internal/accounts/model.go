package accounts

import (
	"fmt"
	"strings"
)

// Role determines which ledger operations an account may perform.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleUser         Role = "user"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleManufacturer:
		return RoleManufacturer, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// CanSubmit reports whether the role may append attestations.
func (r Role) CanSubmit() bool { return r == RoleManufacturer }

// Account is a directory entry. PasswordDigest is never serialised to API
// responses.
type Account struct {
	Username       string `json:"username"`
	PasswordDigest string `json:"-"`
	Role           Role   `json:"role"`
}
