package artifact

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an artifact for the given session / id pair
	// does not exist in the underlying store.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidID is returned for empty ids or ids containing a path
	// separator.
	ErrInvalidID = errors.New("artifact: invalid id")
)

// ValidateID checks a session or artifact id.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
