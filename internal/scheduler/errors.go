package scheduler

import "errors"

var (
	// ErrUnavailable is returned when a reservation would overlap another on the same host
	ErrUnavailable = errors.New("host is not available during that time frame")

	// ErrCorrupt is returned when more than one reservation is active for a host at one instant
	ErrCorrupt = errors.New("overlapping reservations found")

	// ErrUnknownCloud marks an update naming a cloud that does not exist
	ErrUnknownCloud = errors.New("unknown cloud")
)
