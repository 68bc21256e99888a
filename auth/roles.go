// Package auth checks bearer tokens and the dash-separated role strings they carry.
package auth

import (
	"slices"
	"strings"
)

// Roles recognised by the admin endpoints.
const (
	RoleDeveloper = "DEVELOPER"
	RoleTechnic   = "TECHNIC"
	RoleMusic     = "MUSIC"
)

// SplitRoles splits a role string such as "DEVELOPER-MUSIC" into its parts, dropping empty ones.
func SplitRoles(roleString string) []string {
	parts := strings.Split(roleString, "-")
	return slices.DeleteFunc(parts, func(p string) bool { return p == "" })
}

// HasRole reports whether roleString contains role.
func HasRole(roleString, role string) bool {
	return slices.Contains(SplitRoles(roleString), role)
}

// HasAnyRole reports whether roleString contains at least one of allowed.
func HasAnyRole(roleString string, allowed ...string) bool {
	for _, r := range SplitRoles(roleString) {
		if slices.Contains(allowed, r) {
			return true
		}
	}
	return false
}
