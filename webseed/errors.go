package webseed

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoFileForRange = errors.New("no file found for range")
	ErrNoInfo         = errors.New("webseed has no swarm info")
	ErrClosed         = errors.New("webseed peer closed")
	ErrTooFast        = errors.New("making requests too fast")
	// Returned when a request carrying a Range header gets redirected to another origin and the
	// client is restricted to same-origin redirects.
	errCrossOriginRedirect = errors.New("cross-origin redirect refused")
)

type BadResponseError struct {
	StatusCode int
	Status     string
	URL        string
}

func (me BadResponseError) Error() string {
	return fmt.Sprintf("unhandled response status %q for %q", me.Status, me.URL)
}

func (me BadResponseError) Unwrap() error {
	if me.StatusCode == http.StatusServiceUnavailable {
		return ErrTooFast
	}
	return nil
}
