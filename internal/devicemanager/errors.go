package devicemanager

import "errors"

var (
	// ErrCredentialsNotFound indicates no credentials are known for an address.
	ErrCredentialsNotFound = errors.New("devicemanager: credentials not found")

	// ErrInvalidPayload indicates a device manager message failed validation.
	ErrInvalidPayload = errors.New("devicemanager: invalid payload")

	// ErrInvalidAddress indicates an empty or malformed device address.
	ErrInvalidAddress = errors.New("devicemanager: invalid address")
)
