package config

import "codeberg.org/mutker/psuctl/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrInvalidConfig
	ErrInvalidLogLevel = errors.ErrInvalidLogLevel
	ErrBindFlags       = errors.ErrBindFlags
	ErrReadConfig      = errors.ErrReadConfig
)
