package config

import "errors"

var (
	ErrParsingConfig   = errors.New("config: failed to parse environment variables")
	ErrLoadingEnvFile  = errors.New("config: failed to load env file")
	ErrConfigNotLoaded = errors.New("config: configuration has not been loaded")
	ErrNilPointer      = errors.New("config: nil pointer provided to loader")
	ErrInvalidConfig   = errors.New("config: invalid configuration")
)
