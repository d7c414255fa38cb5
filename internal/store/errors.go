package store

import "errors"

var (
	ErrClinicInvalid     = errors.New("clinic not found or inactive")
	ErrDoctorInvalid     = errors.New("doctor not found or unavailable")
	ErrEntryNotFound     = errors.New("queue entry not found")
	ErrInvalidTransition = errors.New("invalid queue status transition")
	ErrClinicNotFound    = errors.New("clinic not found")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrClinicHasDoctors  = errors.New("clinic still has doctors")
	ErrVisitExists       = errors.New("visit record already exists for queue entry")
	ErrVisitNotFound     = errors.New("visit record not found")
	ErrAccessDenied      = errors.New("access denied")
)
