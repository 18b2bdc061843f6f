// Package errors provides centralized error definitions and error handling
// utilities for the phasegate engine. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - PhaseError: errors related to the phase gate state machine
//   - ScheduleError: errors related to parallel group scheduling
//   - LockError: errors related to resource lock acquisition
//   - ConfigError: errors related to the orchestration configuration document
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// # Usage
//
// Creating errors:
//
//	// Domain-specific error
//	err := errors.NewPhaseError("advance refused", errors.ErrGateNotSatisfied).WithPhase("implement")
//
//	// Semantic error
//	err := errors.NewNotFoundError("group", "core-api")
//
// Checking errors:
//
//	// Check for specific sentinel errors
//	if errors.Is(err, errors.ErrLockTimeout) { ... }
//
//	// Use classification helpers
//	if errors.IsRetryable(err) { ... }
//	if errors.IsUserFacing(err) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Phase-related sentinel errors
var (
	// ErrPhaseUninitialized indicates that no run is in progress.
	ErrPhaseUninitialized = New("no phase is active")
	// ErrPhaseNotFound indicates that a named phase does not exist.
	ErrPhaseNotFound = New("phase not found")
	// ErrGateNotSatisfied indicates that a phase's deliverable predicates do not all hold.
	ErrGateNotSatisfied = New("phase gate not satisfied")
	// ErrLaneViolation indicates an operation outside the active phase's lane.
	ErrLaneViolation = New("operation not permitted in current phase lane")
	// ErrNonAdjacentPhase indicates a jump whose intermediate phases cannot be verified.
	ErrNonAdjacentPhase = New("intermediate phase completion cannot be verified")
	// ErrRunNotComplete indicates the current phase has no successful scheduler run.
	ErrRunNotComplete = New("current phase has no successful run")
	// ErrAlreadyInitialized indicates an init when a run is already in progress.
	ErrAlreadyInitialized = New("a run is already in progress")
)

// Scheduling-related sentinel errors
var (
	// ErrRunAborted indicates that a phase run was aborted.
	ErrRunAborted = New("phase run aborted")
	// ErrGroupFailed indicates that a parallel group's work unit failed.
	ErrGroupFailed = New("group execution failed")
	// ErrCriticalPathFailure indicates a failure on a group that blocks others.
	ErrCriticalPathFailure = New("critical path group failed")
	// ErrDependencyCycle indicates a circular dependency between groups.
	ErrDependencyCycle = New("dependency cycle detected")
	// ErrFatalConflict indicates a fatal resource conflict between groups.
	ErrFatalConflict = New("fatal resource conflict")
	// ErrMidRunConflict indicates a group wrote outside its declared scope
	// while the run was in flight.
	ErrMidRunConflict = New("undeclared write during run")
)

// Lock-related sentinel errors
var (
	// ErrLockTimeout indicates that a lock could not be acquired before the timeout.
	ErrLockTimeout = New("lock acquisition timed out")
	// ErrLockHeld indicates that a resource is held by another holder.
	ErrLockHeld = New("resource is locked by another holder")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrConfigInvalid indicates a malformed or self-contradictory configuration.
	ErrConfigInvalid = New("configuration is invalid")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// EngineError is the base interface for all phasegate errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type EngineError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PhaseError represents errors from the phase gate state machine.
//
// Example:
//
//	err := errors.NewPhaseError("advance refused", errors.ErrGateNotSatisfied)
//	err = err.WithPhase("implement").WithCondition("deliverable plan.md missing")
type PhaseError struct {
	baseError
	Phase     string
	Condition string // The precise unmet condition behind a refusal
}

// NewPhaseError creates a new PhaseError.
func NewPhaseError(message string, cause error) *PhaseError {
	return &PhaseError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithPhase adds a phase name to the error context.
func (e *PhaseError) WithPhase(phase string) *PhaseError {
	e.Phase = phase
	return e
}

// WithCondition records the precise unmet condition behind a refusal.
func (e *PhaseError) WithCondition(condition string) *PhaseError {
	e.Condition = condition
	return e
}

// WithSeverity sets the error severity.
func (e *PhaseError) WithSeverity(s Severity) *PhaseError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *PhaseError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}

	prefix := "phase error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("phase error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Condition != "" {
		msg = fmt.Sprintf("%s (unmet: %s)", msg, e.Condition)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *PhaseError) Is(target error) bool {
	if _, ok := target.(*PhaseError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ScheduleError represents errors from the parallel group scheduler.
//
// Example:
//
//	err := errors.NewScheduleError("wave aborted", errors.ErrRunAborted)
//	err = err.WithGroup("core-api").WithPhase("implement")
type ScheduleError struct {
	baseError
	Group string
	Phase string
	Wave  int
}

// NewScheduleError creates a new ScheduleError.
func NewScheduleError(message string, cause error) *ScheduleError {
	return &ScheduleError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Wave: -1, // -1 indicates not set
	}
}

// WithGroup adds a group ID to the error context.
func (e *ScheduleError) WithGroup(id string) *ScheduleError {
	e.Group = id
	return e
}

// WithPhase adds a phase name to the error context.
func (e *ScheduleError) WithPhase(phase string) *ScheduleError {
	e.Phase = phase
	return e
}

// WithWave adds a wave index to the error context.
func (e *ScheduleError) WithWave(wave int) *ScheduleError {
	e.Wave = wave
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ScheduleError) WithRetryable(r bool) *ScheduleError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ScheduleError) Error() string {
	var parts []string
	if e.Group != "" {
		parts = append(parts, fmt.Sprintf("group=%s", e.Group))
	}
	if e.Phase != "" {
		parts = append(parts, fmt.Sprintf("phase=%s", e.Phase))
	}
	if e.Wave >= 0 {
		parts = append(parts, fmt.Sprintf("wave=%d", e.Wave))
	}

	prefix := "schedule error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("schedule error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ScheduleError) Is(target error) bool {
	if _, ok := target.(*ScheduleError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// LockError represents errors from the resource lock manager.
//
// Example:
//
//	err := errors.NewLockError("acquire failed", errors.ErrLockTimeout)
//	err = err.WithResource("config/**").WithHolder("group:docs")
type LockError struct {
	baseError
	Resource string
	Holder   string
}

// NewLockError creates a new LockError.
func NewLockError(message string, cause error) *LockError {
	return &LockError{
		baseError: baseError{
			message: message,
			cause:   cause,
			// Lock timeouts route through the downgrade engine and are
			// retried after serialization, so they are transient.
			severity:   SeverityWarning,
			retryable:  true,
			userFacing: true,
		},
	}
}

// WithResource adds the contended resource to the error context.
func (e *LockError) WithResource(resource string) *LockError {
	e.Resource = resource
	return e
}

// WithHolder adds the current holder to the error context.
func (e *LockError) WithHolder(holder string) *LockError {
	e.Holder = holder
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *LockError) WithRetryable(r bool) *LockError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *LockError) Error() string {
	var parts []string
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", e.Resource))
	}
	if e.Holder != "" {
		parts = append(parts, fmt.Sprintf("holder=%s", e.Holder))
	}

	prefix := "lock error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("lock error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *LockError) Is(target error) bool {
	if _, ok := target.(*LockError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ConfigError represents errors from loading or validating the
// orchestration configuration document. Configuration errors are fatal:
// no scheduling decision proceeds on an invalid document.
type ConfigError struct {
	baseError
	File  string
	Field string
}

// NewConfigError creates a new ConfigError.
func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithFile adds the config file path to the error context.
func (e *ConfigError) WithFile(file string) *ConfigError {
	e.File = file
	return e
}

// WithField adds the offending field path to the error context.
func (e *ConfigError) WithField(field string) *ConfigError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	var parts []string
	if e.File != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.File))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}

	prefix := "config error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("config error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	if errors.Is(target, ErrConfigInvalid) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("group", "core-api")
//	fmt.Println(err) // "group 'core-api' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("group reference is undefined")
//	err = err.WithField("phases.implement.groups[0].depends_on")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for group completion", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for group completion (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing EngineError with IsRetryable() returning true
//   - TimeoutError instances
//   - Errors wrapping ErrTimeout or ErrLockTimeout
//
// Example:
//
//	if errors.IsRetryable(err) {
//	    time.Sleep(backoff)
//	    return retry(operation)
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsRetryable()
	}

	// Known retryable sentinel errors
	if Is(err, ErrTimeout) || Is(err, ErrLockTimeout) {
		return true
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
// This checks for:
//   - Errors implementing EngineError with IsUserFacing() returning true
//   - Semantic errors (NotFoundError, ValidationError, TimeoutError)
//
// Example:
//
//	if errors.IsUserFacing(err) {
//	    displayToUser(err.Error())
//	} else {
//	    displayToUser("An internal error occurred")
//	    log.Error("internal error", "err", err)
//	}
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.IsUserFacing()
	}

	var notFound *NotFoundError
	var validation *ValidationError
	var timeout *TimeoutError

	if As(err, &notFound) || As(err, &validation) || As(err, &timeout) {
		return true
	}

	return false
}

// SeverityOf returns the severity of an error. Errors that do not implement
// EngineError default to SeverityError.
func SeverityOf(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var engineErr EngineError
	if As(err, &engineErr) {
		return engineErr.Severity()
	}
	return SeverityError
}

// IsAbortClass returns true if the error should stop an entire phase run
// rather than be absorbed at group level.
func IsAbortClass(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrCriticalPathFailure) || Is(err, ErrRunAborted) || Is(err, ErrFatalConflict)
}
