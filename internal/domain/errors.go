package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common chat failures.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrMissingRoom      = errors.New("room id is required")
	ErrMissingUser      = errors.New("user id is required")
	ErrSessionClosed    = errors.New("chat session is closed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrEmptyMessage     = errors.New("message content cannot be empty")
)
