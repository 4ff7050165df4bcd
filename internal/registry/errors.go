package registry

import "errors"

var (
	ErrNotFound           = errors.New("participant not found")
	ErrInvalidParticipant = errors.New("invalid participant")
	ErrEmailConflict      = errors.New("email address is already in use by another participant")
	ErrInvalidLookup      = errors.New("lookup needs a scan identifier or a registration number")
)
