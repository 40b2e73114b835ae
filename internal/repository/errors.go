package repository

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced encounter or player doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an encounter id is already taken
	ErrConflict = errors.New("conflict: encounter id already exists")

	// ErrInvalidInput is returned when snapshot validation fails
	ErrInvalidInput = errors.New("invalid input")
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
