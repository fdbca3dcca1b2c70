package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every ConfigError.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrNotInitialized is returned by operations that need settings before Initialize ran.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrCapacity is returned when adding a drone would exceed MaxDrones.
	ErrCapacity = errors.New("drone capacity reached")
	// ErrUnknownEffect is returned for a nil or unsupported mock effect.
	ErrUnknownEffect = errors.New("unknown effect")
)

// ConfigError reports an invalid setting. It is raised before any state changes.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrConfiguration) match.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// NotFoundError reports an unknown drone or alert id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
