package fetch

import (
	"fmt"
	"net/http"
)

// NetworkError is a transport failure or a non-success HTTP status.
// Exactly one of Status and Err is set.
type NetworkError struct {
	Method string
	Url    string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch: %s %s: %v", e.Method, e.Url, e.Err)
	}
	return fmt.Sprintf("fetch: %s %s: unexpected status %d %s", e.Method, e.Url, e.Status, http.StatusText(e.Status))
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
