// Package errors provides the domain error types for launchbot.
//
// Sentinel errors identify the four error kinds the bot distinguishes. Typed
// errors carry the details (which department, which input, which keys) and
// match their sentinel through errors.Is.
//
// Usage:
//
//	import lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
//
//	if lberrors.IsInvalidDate(err) {
//	    // tell the user how to format the date
//	}
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain errors.
var (
	// ErrInvalidDate indicates a launch date that is not a valid YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("invalid launch date")

	// ErrExecution indicates a department query failed after retries.
	ErrExecution = errors.New("query execution failed")

	// ErrTimeout indicates a per-query or batch deadline was exceeded.
	ErrTimeout = errors.New("query timed out")

	// ErrConfiguration indicates missing or invalid startup configuration.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")
)

// InvalidDateError reports a launch date that failed to parse.
type InvalidDateError struct {
	Input string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid launch date %q: expected YYYY-MM-DD", e.Input)
}

// Is makes errors.Is(err, ErrInvalidDate) succeed.
func (e *InvalidDateError) Is(target error) bool {
	return target == ErrInvalidDate
}

// ConfigurationError collects every problem found while loading configuration.
type ConfigurationError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		missing := append([]string(nil), e.Missing...)
		sort.Strings(missing)
		parts = append(parts, "missing required keys: "+strings.Join(missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid values: "+strings.Join(e.Invalid, "; "))
	}
	if len(parts) == 0 {
		return ErrConfiguration.Error()
	}
	return ErrConfiguration.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrConfiguration) succeed.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// AddMissing records a required key that was not set.
func (e *ConfigurationError) AddMissing(key string) {
	e.Missing = append(e.Missing, key)
}

// AddInvalid records a key whose value could not be used.
func (e *ConfigurationError) AddInvalid(key, reason string) {
	e.Invalid = append(e.Invalid, key+": "+reason)
}

// HasProblems reports whether anything was recorded.
func (e *ConfigurationError) HasProblems() bool {
	return len(e.Missing) > 0 || len(e.Invalid) > 0
}

// OrNil returns e when it has problems and nil otherwise.
func (e *ConfigurationError) OrNil() error {
	if e.HasProblems() {
		return e
	}
	return nil
}

// IsInvalidDate reports whether any error in err's chain is ErrInvalidDate.
func IsInvalidDate(err error) bool {
	return errors.Is(err, ErrInvalidDate)
}

// IsConfiguration reports whether any error in err's chain is ErrConfiguration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
