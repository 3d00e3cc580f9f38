package extraction

import "errors"

var (
	// ErrEmptyInput is returned for blank messages; no backend is contacted.
	ErrEmptyInput = errors.New("empty input")
	// ErrServiceUnavailable marks transient backend failures that are worth retrying.
	ErrServiceUnavailable = errors.New("extraction service unavailable")
	// ErrMalformedResponse marks backend output that is not a usable extraction.
	ErrMalformedResponse = errors.New("malformed extraction response")
)
