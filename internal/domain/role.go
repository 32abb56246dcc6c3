package domain

import (
	"fmt"
	"strings"
)

// Role is a user's place in the classroom hierarchy.
type Role int

const (
	RoleGuest Role = iota
	RoleStudent
	RoleTeacher
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleGuest:   "guest",
	RoleStudent: "student",
	RoleTeacher: "teacher",
	RoleAdmin:   "admin",
}

// roleRank is the explicit ordinal table used for comparisons.
var roleRank = map[Role]int{
	RoleGuest:   0,
	RoleStudent: 10,
	RoleTeacher: 20,
	RoleAdmin:   30,
}

// ParseRole converts a role name to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "guest", "":
		return RoleGuest, nil
	case "student":
		return RoleStudent, nil
	case "teacher":
		return RoleTeacher, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleGuest, fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// AtLeast reports whether r ranks at or above min. Unknown roles never pass.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[min]
	if !ok {
		return false
	}
	return have >= want
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
