package service

import "strings"

// NormalizeEmail lowercases and trims an email address. The normalized form
// is what the store keys uniqueness on.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
