package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUpstreamUnavailable means the origin answered with a status other than 200.
	ErrUpstreamUnavailable = errors.New("stream unavailable")
	// ErrUpstreamTimeout means the origin produced no response within the connect timeout.
	ErrUpstreamTimeout = errors.New("connection timeout")
	// ErrUpstreamTransport covers DNS failures, refused and reset connections.
	ErrUpstreamTransport = errors.New("upstream error")
	// ErrClientAbort means the listener went away before or during the relay.
	ErrClientAbort = errors.New("client aborted")
)

// UpstreamError describes a failed relay attempt against one upstream URL.
type UpstreamError struct {
	Kind       error
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s returned status %d", e.Kind, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Response maps a relay error to the status and plain-text body sent to the listener.
// Client aborts produce no response and report ok=false.
func Response(err error) (status int, body string, ok bool) {
	switch {
	case err == nil, errors.Is(err, ErrClientAbort):
		return 0, "", false
	case errors.Is(err, ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "Connection timeout", true
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway, "Stream unavailable", true
	default:
		return http.StatusBadGateway, "Upstream error", true
	}
}

// isConnectionClosedError checks if error is result of client closing connection.
func isConnectionClosedError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "use of closed network connection")
}
