package fetcher

import (
	"fmt"

	"github.com/pkg/errors"
)

// FetchError is a transport failure or a non-2xx response from upstream.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedDataError means the upstream payload could not be decoded or
// lacked required fields. It is handled like a FetchError.
type MalformedDataError struct {
	URL    string
	ID     string
	Reason string
	Err    error
}

func (e *MalformedDataError) Error() string {
	msg := "malformed data from " + e.URL
	if e.ID != "" {
		msg += " for " + e.ID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedDataError) Unwrap() error { return e.Err }

// IsFetchFailure reports whether err is a FetchError or MalformedDataError.
func IsFetchFailure(err error) bool {
	var fe *FetchError
	var me *MalformedDataError
	return errors.As(err, &fe) || errors.As(err, &me)
}
