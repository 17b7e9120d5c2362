// Package config loads configuration structs from a chain of feeders, applies
// `default` tags, and validates the result with go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Static errors for the config package
var (
	ErrConfigNil                 = errors.New("config is nil")
	ErrConfigNotPointer          = errors.New("config must be a non-nil pointer")
	ErrConfigNotStruct           = errors.New("config must be a struct")
	ErrConfigFeeder              = errors.New("config feeder error")
	ErrConfigValidationFailed    = errors.New("config validation failed")
	ErrUnsupportedTypeForDefault = errors.New("unsupported type for default value")
	ErrDefaultValueParse         = errors.New("failed to parse default value")
	ErrDefaultValueOverflow      = errors.New("default value overflows field")
	ErrUnsupportedFormat         = errors.New("unsupported format")
)

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(target any) error
}

// Validator is implemented by configs with rules beyond struct tags. It runs
// after tag validation succeeds.
type Validator interface {
	Validate() error
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance returns the shared validator.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Load feeds target from every feeder in order, later feeders overriding
// earlier ones, then applies defaults and validates.
func Load(target any, feeders ...Feeder) error {
	if _, err := structValue(target); err != nil {
		return err
	}

	for i, f := range feeders {
		if err := f.Feed(target); err != nil {
			return fmt.Errorf("%w: feeder %d (%T): %w", ErrConfigFeeder, i, f, err)
		}
	}

	if err := ProcessDefaults(target); err != nil {
		return err
	}
	return Validate(target)
}

// Validate checks `validate` tags and, when implemented, the Validator
// interface.
func Validate(target any) error {
	if _, err := structValue(target); err != nil {
		return err
	}

	if err := validatorInstance().Struct(target); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
	}
	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
		}
	}
	return nil
}

// Struct validates any struct against its `validate` tags using the shared
// validator.
func Struct(s any) error {
	return validatorInstance().Struct(s)
}
