package domain

import "errors"

// Taxonomía estable de errores que el core expone a los callers.
// La capa de transporte mapea cada categoría a un status code;
// este paquete nunca conoce HTTP.
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInvariantViolation    = errors.New("invariant violation")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)
