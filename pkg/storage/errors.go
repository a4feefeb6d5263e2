package storage

import "errors"

var (
	// ErrNotFound is returned when the requested file does not exist or is
	// not a regular file.
	ErrNotFound = errors.New("storage: file not found")

	// ErrQuotaExceeded is returned when an upload would push the user's
	// total usage past the quota. The target file is left untouched.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrInvalidName is returned for usernames or filenames that are not a
	// single safe path component.
	ErrInvalidName = errors.New("storage: invalid name")
)
