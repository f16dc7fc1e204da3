package core

import (
	"errors"
	"fmt"
)

// Domain sentinels, matched with errors.Is across package boundaries
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// NewNotFoundError wraps ErrNotFound with the resource kind and id
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError reports whether the chain carries ErrNotFound
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
