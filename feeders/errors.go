package feeders

import "errors"

// Feeder errors
var (
	ErrFileRead                = errors.New("failed to read config file")
	ErrKeyNotFound             = errors.New("config key not found")
	ErrEnvInvalidStructure     = errors.New("env: invalid structure")
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrEnvCannotConvert        = errors.New("env: cannot convert value")
	ErrEnvFieldCannotBeSet     = errors.New("env: field cannot be set")
)
