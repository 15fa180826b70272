// Package errs defines the error taxonomy shared by the plan scheduler,
// the pipeline executor and the parameter resolver.
package errs

import (
	"errors"
	"fmt"
)

// StopKind discriminates structured stops raised by step bodies.
type StopKind string

const (
	StopPause StopKind = "pause"
	StopError StopKind = "error"
)

// ConfigError reports a malformed application: unknown class names,
// cyclic plans, missing required inputs. A plan carrying a ConfigError
// never starts.
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config: %s: %v", e.Message, e.Cause)
	}
	return "config: " + e.Message
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

func WrapConfigError(cause error, format string, args ...any) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// MappingError reports that the resolver could not produce a required
// value for a step argument.
type MappingError struct {
	Parameter string
	Message   string
	Cause     error
}

func (e *MappingError) Error() string {
	msg := fmt.Sprintf("mapping parameter %q: %s", e.Parameter, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() error { return e.Cause }

func NewMappingError(parameter, format string, args ...any) *MappingError {
	return &MappingError{Parameter: parameter, Message: fmt.Sprintf(format, args...)}
}

// StepError is the structured stop: a step body signalling pause or a
// recoverable failure. The executor turns it into the pipeline's PAUSED
// or ERRORED terminal state instead of unwinding.
type StepError struct {
	Kind       StopKind
	StepID     string
	PipelineID string
	Message    string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s/%s %s: %s", e.PipelineID, e.StepID, e.Kind, e.Message)
}

// Pause builds a StepError that pauses the owning pipeline.
func Pause(format string, args ...any) *StepError {
	return &StepError{Kind: StopPause, Message: fmt.Sprintf(format, args...)}
}

// Fail builds a StepError that moves the owning pipeline to ERRORED.
func Fail(format string, args ...any) *StepError {
	return &StepError{Kind: StopError, Message: fmt.Sprintf(format, args...)}
}

// FatalError wraps any unexpected failure escaping a step body. It aborts
// the owning execution; descendants are skipped.
type FatalError struct {
	StepID     string
	PipelineID string
	Cause      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error in step %s/%s: %v", e.PipelineID, e.StepID, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsMappingError(err error) bool {
	var me *MappingError
	return errors.As(err, &me)
}

func IsStepError(err error) bool {
	var se *StepError
	return errors.As(err, &se)
}

// AsStepError returns the StepError wrapped in err, if any.
func AsStepError(err error) (*StepError, bool) {
	var se *StepError
	ok := errors.As(err, &se)
	return se, ok
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
