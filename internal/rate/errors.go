package rate

import "errors"

var (
	// ErrBackendUnavailable reports a counter store that could not be reached.
	ErrBackendUnavailable = errors.New("rate counter backend unavailable")
)
