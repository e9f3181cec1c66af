package models

import (
	"errors"
	"fmt"
)

// RoleName is the closed set of roles a user can hold.
type RoleName string

const (
	RoleUser          RoleName = "USER"
	RoleAdministrator RoleName = "ADMINISTRATOR"
)

// RoleNames lists every valid RoleName.
var RoleNames = []RoleName{RoleAdministrator, RoleUser}

// ErrUnknownRole is returned when a stored role name is outside RoleNames.
var ErrUnknownRole = errors.New("unknown user role")

// ParseRoleName converts a stored role name into a RoleName.
func ParseRoleName(name string) (RoleName, error) {
	for _, role := range RoleNames {
		if string(role) == name {
			return role, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownRole, name)
}

type Role struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"uniqueIndex;size:32;not null"`
}
