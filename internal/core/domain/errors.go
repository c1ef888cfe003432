package domain

import "errors"

// Domain Errors
var (
	ErrClosed           = errors.New("location provider is shut down")
	ErrPermissionDenied = errors.New("location permission not granted")
	ErrInvalidRequest   = errors.New("invalid location request")
	ErrInvalidSample    = errors.New("invalid location sample")
	ErrNoLocation       = errors.New("no location available")
	ErrInvalidAction    = errors.New("invalid audit action")
	ErrMissingUser      = errors.New("user identification is required for auditing")
)
