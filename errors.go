package banksim

import (
	"errors"
	"fmt"
)

var (
	// ErrNilSink is returned when a runner is constructed without a
	// result sink.
	ErrNilSink = errors.New("banksim: nil result sink")
)

// ConfigError indicates an invalid run configuration. Configuration
// problems are detected before any batch work begins and are always fatal.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ConfigError struct {
	Field string
	cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("banksim: invalid configuration %q: %v", e.Field, e.cause)
}

func (e *ConfigError) Unwrap() error { return e.cause }

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, cause: fmt.Errorf(format, args...)}
}
