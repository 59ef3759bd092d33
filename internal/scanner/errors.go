package scanner

import "errors"

var (
	// ErrNoAdapter is returned when a Scanner is built without an adapter.
	ErrNoAdapter = errors.New("scanner: no adapter")

	// ErrAlreadyRunning is returned by Start on a running scanner.
	ErrAlreadyRunning = errors.New("scanner: already running")

	// ErrEnableFailed is returned when the radio cannot be enabled.
	ErrEnableFailed = errors.New("scanner: enabling adapter failed")
)
