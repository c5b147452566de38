package repository

import "errors"

var (
	// ErrUserNotFound is returned by every lookup that resolves no row.
	// Callers must handle it explicitly instead of receiving a nil user.
	ErrUserNotFound = errors.New("user not found")

	// ErrStaleRotation is returned when a refresh-hash overwrite loses the
	// compare-and-swap on token_version to a concurrent rotation.
	ErrStaleRotation = errors.New("refresh token rotation is stale")
)
