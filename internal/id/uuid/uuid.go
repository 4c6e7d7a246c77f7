// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID strings of a fixed version.
type Generator struct {
	random bool
}

// New creates a Generator that emits time-ordered UUIDv7 strings, used for database rows.
func New() *Generator {
	return &Generator{}
}

// NewRandom creates a Generator that emits UUIDv4 strings, used for uploaded object names.
func NewRandom() *Generator {
	return &Generator{random: true}
}

// NewID returns a new UUID string.
func (g Generator) NewID() (string, error) {
	if g.random {
		id, err := uuid.NewRandom()
		if err != nil {
			return "", fmt.Errorf("generate uuid4: %w", err)
		}
		return id.String(), nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
