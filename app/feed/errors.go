package feed

import (
	"errors"
	"fmt"
)

// ErrNoFeedFound is returned by the discoverer when every candidate has
// been tried (or the time budget elapsed) without a successful parse.
var ErrNoFeedFound = errors.New("no feed detected")

// FetchError reports a network failure, timeout or non-2xx response.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError reports a response body that could not be interpreted as a
// valid feed or HTML document.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
