package checkin

import "errors"

var (
	ErrEventNotFound      = errors.New("event not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrInvalidEvent       = errors.New("invalid event")
)
