package models

import (
	"strings"
	"time"
)

// Roles stored in the profiles table.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Profile is the per-user onboarding record kept in the backend profiles
// table. A user who never completed onboarding has no row at all.
type Profile struct {
	// ID equals the owning user's identifier.
	ID string `json:"id"`

	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`

	// Completed is nil when the backend schema has no completed column yet.
	Completed *bool `json:"completed,omitempty"`

	// Role is "user" unless an administrator changed it.
	Role string `json:"role,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasNames reports whether both first and last name are present and
// non-blank.
func (p *Profile) HasNames() bool {
	if p == nil {
		return false
	}
	return nonBlank(p.FirstName) && nonBlank(p.LastName)
}

// IsCompleted reports whether the completed flag is explicitly true.
func (p *Profile) IsCompleted() bool {
	return p != nil && p.Completed != nil && *p.Completed
}

// Clone returns a deep copy so snapshots never share pointers with state
// that is still being mutated.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.FirstName != nil {
		v := *p.FirstName
		c.FirstName = &v
	}
	if p.LastName != nil {
		v := *p.LastName
		c.LastName = &v
	}
	if p.Completed != nil {
		v := *p.Completed
		c.Completed = &v
	}
	return &c
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// Ptr returns a pointer to v. Handy for optional profile columns.
func Ptr[T any](v T) *T {
	return &v
}
