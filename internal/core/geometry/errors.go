package geometry

import "errors"

// Geometry errors
var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidLane      = errors.New("invalid lane")
	ErrInvalidRoute     = errors.New("invalid route")
	ErrInvalidGrid      = errors.New("invalid grid dimensions")
)
