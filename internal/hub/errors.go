package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrHubUnavailable is returned when the automation hub cannot be reached,
	// times out, answers with a non-2xx status or an undecodable body, or the
	// breaker is open.
	ErrHubUnavailable = errors.New("hub: unavailable")

	// ErrDeviceUnavailable is returned when a directly addressed device
	// cannot be reached or rejects the command.
	ErrDeviceUnavailable = errors.New("hub: device unavailable")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("hub: invalid config")
)

// StatusError records a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// clientFault reports whether err is a 4xx response. Such errors are about
// one request (a missing entity, a bad token) rather than the hub's health.
func clientFault(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}
