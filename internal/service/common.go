package service

import "errors"

var (
	// ErrPIDReused means the PID file names a live process that is not the
	// one the supervisor started.
	ErrPIDReused = errors.New("pid reused by another process")
	// ErrLsofMissing means listener discovery is unavailable.
	ErrLsofMissing = errors.New("lsof not found")
	// ErrExitedEarly means a detached child died within its start grace.
	ErrExitedEarly = errors.New("process exited during startup")
)

// ServiceStatus represents the observed state of one service.
type ServiceStatus struct {
	Name      string // Service name (e.g., "suggestion", "related")
	Running   bool   // true if the PID file names a live process
	PID       int    // Process ID (0 if not running)
	Port      int    // Configured listen port
	Listening bool   // true if something accepts connections on Port
	LogFile   string // Path of the service log
}
