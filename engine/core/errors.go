package core

import (
	"errors"
)

var (
	ErrNilResourceMapping = errors.New("resource mapping is nil")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrUnknownID          = errors.New("unknown identifier")
	ErrUnknown            = errors.New("unknown")
)
