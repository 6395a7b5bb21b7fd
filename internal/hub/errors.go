package hub

import (
	"errors"
	"fmt"
)

// ErrUnknownServer is returned by stop and restart when no record exists
// for the requested id. It is a common and expected race, not a fault.
var ErrUnknownServer = errors.New("unknown server")

// ValidationError reports a malformed ServerConfig passed to start.
// It is rejected before any state change and is always recoverable by the
// caller correcting the input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid server config: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a configuration validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
