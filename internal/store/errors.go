package store

import "errors"

var (
	ErrEntryNotFound      = errors.New("entry not found")
	ErrPatientNotFound    = errors.New("patient not found")
	ErrNoCapacity         = errors.New("no waiting entry or free room")
	ErrSessionNotFound    = errors.New("session not found")
	ErrDepartmentMismatch = errors.New("department does not match patient record")
	ErrInvalidStage       = errors.New("invalid stage")
)
