package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnknownSensor rejects a batch that references a sensor id the store does not know
	ErrUnknownSensor = errors.New("unknown sensor")

	// ErrInvalidPayload rejects a batch whose reading data does not match its sensor category
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidTimestamp rejects a batch with an unparseable timestamp
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrInvalidArgument rejects a malformed query or request field
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIncidentNotOpen is returned when resolving an incident that is already resolved
	ErrIncidentNotOpen = errors.New("incident is not open")
)
