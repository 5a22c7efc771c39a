package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel kinds for engine failures. Components wrap causes with one of
// these so callers can classify without string matching.
var (
	// ErrConfig indicates bad or placeholder configuration
	ErrConfig = errors.New("config error")

	// ErrNetwork indicates transport failure, HTTP >= 400, or exhausted retries
	ErrNetwork = errors.New("network error")

	// ErrIntegrity indicates hash/CRC/size mismatch, bad manifest signature,
	// or a malformed delta
	ErrIntegrity = errors.New("integrity error")

	// ErrPath indicates path normalization or permission failure
	ErrPath = errors.New("path error")

	// ErrResource indicates memory, storage, or battery below threshold
	ErrResource = errors.New("resource error")

	// ErrState indicates a corrupt persisted record; recovered by treating
	// the record as absent
	ErrState = errors.New("state error")

	// ErrIOFault indicates a filesystem operation failure
	ErrIOFault = errors.New("io fault")
)

// Wrap attaches a sentinel kind to err, preserving the cause chain
func Wrap(kind error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Wrapf attaches a sentinel kind with a formatted message
func Wrapf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsConfig reports whether err is a configuration error
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsNetwork reports whether err is a network error
func IsNetwork(err error) bool { return errors.Is(err, ErrNetwork) }

// IsIntegrity reports whether err is an integrity error
func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrity) }

// IsPath reports whether err is a path error
func IsPath(err error) bool { return errors.Is(err, ErrPath) }

// IsResource reports whether err is a resource error
func IsResource(err error) bool { return errors.Is(err, ErrResource) }

// IsState reports whether err is a state error
func IsState(err error) bool { return errors.Is(err, ErrState) }

// IsIOFault reports whether err is a filesystem fault
func IsIOFault(err error) bool { return errors.Is(err, ErrIOFault) }
