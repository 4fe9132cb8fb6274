// internal/data/errors.go
package data

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a request the caller must fix. Maps to 400.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a lookup of an id that does not exist. Maps to 404.
	ErrNotFound = errors.New("not found")
	// ErrEmptyBatch rejects a bulk submission with nothing to write.
	ErrEmptyBatch = fmt.Errorf("%w: readings must be a non-empty array", ErrValidation)
)
