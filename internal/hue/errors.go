package hue

import (
	"errors"
	"fmt"
	"net/http"
)

// Bridge error taxonomy.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrBridgeUnavailable is returned for transport failures and non-2xx responses.
	ErrBridgeUnavailable = errors.New("hue: bridge unavailable")

	// ErrDecode is returned when a response body does not match the expected shape.
	ErrDecode = errors.New("hue: decode failure")

	// ErrNotFound is returned when an expected singleton resource is absent.
	ErrNotFound = errors.New("hue: resource not found")
)

// StatusError reports a non-2xx HTTP status from the bridge.
// It matches ErrBridgeUnavailable, and ErrNotFound as well for a 404.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("hue: %s %s: unexpected status code %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("hue: %s %s: unexpected status code %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBridgeUnavailable:
		return true
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

func unavailable(method, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrBridgeUnavailable, method, path, err)
}

func decodeFailure(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}
