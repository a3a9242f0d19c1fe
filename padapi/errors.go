package padapi

import "errors"

var (
	// ErrDeviceUnavailable is returned by Open when the device subsystem cannot be
	// initialized or no device is attached at the requested index.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrDeviceLost reports a handle that stopped being attached mid-session.
	// Polling keeps running on stale state until the controller is closed.
	ErrDeviceLost = errors.New("device lost")

	ErrClosed         = errors.New("controller closed")
	ErrAlreadyOpen    = errors.New("controller already open")
	ErrProfileInvalid = errors.New("invalid profile")
	ErrInvalidTuning  = errors.New("invalid tuning")
	ErrUnknownProfile = errors.New("unknown profile")
	ErrUnknownBackend = errors.New("unknown backend")
)
