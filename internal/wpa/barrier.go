// Package wpa implements the association barrier: it watches a wpa_cli
// control-client's event stream until the supplicant reports a completed
// connection to the access point.
package wpa

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"
)

// ConnectedMarker is the wpa_cli event line fragment signaling a completed
// association.
const ConnectedMarker = "CTRL-EVENT-CONNECTED"

// ErrWaitTimeout reports that the association wait exceeded its configured
// timeout before the supplicant connected.
var ErrWaitTimeout = errors.New("timed out waiting for association")

// WaitForConnection consumes lines from r until one contains
// ConnectedMarker, then stops reading and returns true. A stream that closes
// without the marker returns false with a nil error: the supplicant's
// monitor went away without reporting a connection, which the caller may
// treat as a warning rather than a failure.
//
// A timeout of zero blocks indefinitely, matching wpa_cli's own behavior of
// never timing out an event wait. A positive timeout bounds the wait and
// surfaces as ErrWaitTimeout. On timeout the stream keeps being drained by a
// background reader until it closes; terminating the wpa_cli process closes
// it.
func WaitForConnection(r io.Reader, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return scan(r), nil
	}

	done := make(chan bool, 1)
	go func() { done <- scan(r) }()

	select {
	case found := <-done:
		return found, nil
	case <-time.After(timeout):
		return false, ErrWaitTimeout
	}
}

func scan(r io.Reader) bool {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if strings.Contains(sc.Text(), ConnectedMarker) {
			return true
		}
	}
	return false
}
