package service

import "errors"

// Error definitions for the service package.
var (
	ErrAudioUnavailable = errors.New("audio file did not materialize in time")
	ErrNoModelAssigned  = errors.New("no model assigned to service")
)
