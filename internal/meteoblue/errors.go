package meteoblue

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when a client is constructed without a credential.
var ErrMissingAPIKey = errors.New("meteoblue API key is required")

// HTTPError is returned for non-2xx upstream responses. It carries the status
// code and response body so callers can report the upstream failure verbatim.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("meteoblue: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("meteoblue: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsHTTPStatus reports whether err is an HTTPError with the given status code.
func IsHTTPStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}
