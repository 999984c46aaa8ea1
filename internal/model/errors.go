package model

import "errors"

// Transport-level outcomes shared between the REST driver and the usecases.
// The driver maps HTTP statuses onto these; usecases branch with errors.Is.
var (
	ErrNotFound     = errors.New("no such resource")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal error")
)
