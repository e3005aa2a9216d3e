package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when triggering a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrUnknownLoop is returned for a tenant/kind pair with no loop
	ErrUnknownLoop = errors.New("no sync loop for this tenant/kind")

	// ErrUnknownKind is returned by the executor for unsupported job kinds
	ErrUnknownKind = errors.New("unknown sync kind")
)
