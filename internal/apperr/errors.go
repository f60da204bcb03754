// Package apperr holds the sentinel errors shared across the gateway.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrMalformedTarget = errors.New("malformed target")
	ErrInvalidPath     = errors.New("invalid path")
	ErrInvalidQuery    = errors.New("invalid query")
	ErrUnsupported     = errors.New("not supported by upstream")
	ErrTransport       = errors.New("vault transport error")
)
