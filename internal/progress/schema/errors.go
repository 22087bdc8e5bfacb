package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy of the progress layer. Adapters wrap these so callers can
// match with errors.Is.
var (
	// ErrStorageUnavailable means the local medium is blocked or full. The
	// local store keeps working in memory for the rest of the session.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrRemoteUnavailable covers network, auth and server failures of the
	// remote store.
	ErrRemoteUnavailable = errors.New("remote storage unavailable")

	// ErrValidationFailed means a required exercise field is missing.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSerialization means stored JSON could not be decoded.
	ErrSerialization = errors.New("corrupt stored data")
)

// ValidationError reports the required fields that blocked a section submit.
type ValidationError struct {
	Section int
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("section %d: please fill in all required fields (missing: %s)",
		e.Section, strings.Join(e.Missing, ", "))
}

// Unwrap lets errors.Is(err, ErrValidationFailed) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
