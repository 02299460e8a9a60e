package session

import "errors"

// Sentinel errors for the session table.
var (
	ErrNotFound = errors.New("session not found")
	ErrExists   = errors.New("session already exists")
)
