package errors

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors
const (
	CodeCapabilityUnresolved    = "CAPABILITY_UNRESOLVED"
	CodeMalformedDeclaration    = "MALFORMED_DECLARATION"
	CodeInstantiationFault      = "INSTANTIATION_FAULT"
	CodeEmptyRequiredCollection = "EMPTY_REQUIRED_COLLECTION"
	CodeCircularDependency      = "CIRCULAR_DEPENDENCY"
	CodeDepthExceeded           = "DEPTH_EXCEEDED"
	CodeInvalidConstructor      = "INVALID_CONSTRUCTOR"
	CodeUnknownCapability       = "UNKNOWN_CAPABILITY"
	CodeRuntimeClosed           = "RUNTIME_CLOSED"
	CodeConfigError             = "CONFIG_ERROR"
)

// =============================================================================
// LOCATOR ERROR (STRUCTURED ERROR)
// =============================================================================

// LocatorError represents a structured error with context.
//
// Chain holds the capability identities that could not be satisfied, most
// specific first. It is only populated for unresolved and empty collection
// errors.
type LocatorError struct {
	Code      string
	Message   string
	Cause     error
	Chain     []string
	Timestamp time.Time
	Context   map[string]interface{}
}

func (e *LocatorError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *LocatorError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is interface for LocatorError.
// Compares by error code, allowing matching against sentinel errors.
func (e *LocatorError) Is(target error) bool {
	t, ok := target.(*LocatorError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithContext adds context to the error
func (e *LocatorError) WithContext(key string, value interface{}) *LocatorError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

// ErrCapabilityUnresolved reports that no candidate for capability could be
// built. The chain carried by cause, if any, is extended with capability.
func ErrCapabilityUnresolved(capability string, cause error) *LocatorError {
	chain := append(Chain(cause), capability)
	return &LocatorError{
		Code:      CodeCapabilityUnresolved,
		Message:   chainMessage(chain),
		Cause:     unchained(cause),
		Chain:     chain,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"capability": capability},
	}
}

// ErrEmptyRequiredCollection reports a required collection with no
// providers. cause is the last candidate failure, if any.
func ErrEmptyRequiredCollection(capability string, cause error) *LocatorError {
	chain := append(Chain(cause), capability)
	return &LocatorError{
		Code:      CodeEmptyRequiredCollection,
		Message:   "no providers available for required collection of " + capability,
		Cause:     unchained(cause),
		Chain:     chain,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"capability": capability},
	}
}

func ErrMalformedDeclaration(path string, line int, identity string, cause error) *LocatorError {
	msg := "malformed declaration"
	if path != "" {
		msg += " at " + path
		if line > 0 {
			msg += ":" + strconv.Itoa(line)
		}
	}
	if identity != "" {
		msg += " (" + identity + ")"
	}
	return &LocatorError{
		Code:      CodeMalformedDeclaration,
		Message:   msg,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"path": path, "line": line, "identity": identity},
	}
}

func ErrInstantiationFault(implementation string, cause error) *LocatorError {
	return &LocatorError{
		Code:      CodeInstantiationFault,
		Message:   "failed to instantiate " + implementation,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"implementation": implementation},
	}
}

func ErrCircularDependency(path []string) *LocatorError {
	return &LocatorError{
		Code:      CodeCircularDependency,
		Message:   "circular dependency detected: " + strings.Join(path, " -> "),
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"path": path},
	}
}

func ErrDepthExceeded(path []string, limit int) *LocatorError {
	return &LocatorError{
		Code:      CodeDepthExceeded,
		Message:   "resolution depth limit " + strconv.Itoa(limit) + " exceeded: " + strings.Join(path, " -> "),
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"path": path, "limit": limit},
	}
}

func ErrInvalidConstructor(implementation string, cause error) *LocatorError {
	return &LocatorError{
		Code:      CodeInvalidConstructor,
		Message:   "invalid constructor for " + implementation,
		Cause:     cause,
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"implementation": implementation},
	}
}

func ErrUnknownCapability(identity string) *LocatorError {
	return &LocatorError{
		Code:      CodeUnknownCapability,
		Message:   "capability '" + identity + "' is not registered",
		Timestamp: time.Now(),
		Context:   map[string]interface{}{"capability": identity},
	}
}

func ErrConfigError(message string, cause error) *LocatorError {
	return &LocatorError{
		Code:      CodeConfigError,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// ErrRuntimeClosed is returned by operations on a closed runtime.
var ErrRuntimeClosed = &LocatorError{Code: CodeRuntimeClosed, Message: "runtime closed"}

// =============================================================================
// CHAIN HELPERS
// =============================================================================

// Chain returns the unresolved capability chain carried by err, most specific
// first, or nil when err carries none.
func Chain(err error) []string {
	var le *LocatorError
	if !errors.As(err, &le) || len(le.Chain) == 0 {
		return nil
	}
	out := make([]string, len(le.Chain))
	copy(out, le.Chain)
	return out
}

// unchained drops an outer unresolved error whose chain is being absorbed,
// so the rendered message does not repeat the chain.
func unchained(err error) error {
	var le *LocatorError
	if errors.As(err, &le) && le.Code == CodeCapabilityUnresolved {
		return le.Cause
	}
	return err
}

func chainMessage(chain []string) string {
	if len(chain) == 0 {
		return "could not resolve capability"
	}
	msg := "could not resolve capability " + chain[0]
	for _, c := range chain[1:] {
		msg += " required by " + c
	}
	return msg
}

// =============================================================================
// STANDARD LIBRARY WRAPPERS
// =============================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func New(text string) error {
	return errors.New(text)
}

func Join(errs ...error) error {
	return errors.Join(errs...)
}

// =============================================================================
// SENTINEL ERRORS (for use with Is)
// =============================================================================

var (
	ErrCapabilityUnresolvedSentinel    = &LocatorError{Code: CodeCapabilityUnresolved}
	ErrMalformedDeclarationSentinel    = &LocatorError{Code: CodeMalformedDeclaration}
	ErrInstantiationFaultSentinel      = &LocatorError{Code: CodeInstantiationFault}
	ErrEmptyRequiredCollectionSentinel = &LocatorError{Code: CodeEmptyRequiredCollection}
	ErrCircularDependencySentinel      = &LocatorError{Code: CodeCircularDependency}
	ErrDepthExceededSentinel           = &LocatorError{Code: CodeDepthExceeded}
	ErrInvalidConstructorSentinel      = &LocatorError{Code: CodeInvalidConstructor}
	ErrUnknownCapabilitySentinel       = &LocatorError{Code: CodeUnknownCapability}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsCapabilityUnresolved(err error) bool {
	return Is(err, ErrCapabilityUnresolvedSentinel)
}

func IsMalformedDeclaration(err error) bool {
	return Is(err, ErrMalformedDeclarationSentinel)
}

func IsInstantiationFault(err error) bool {
	return Is(err, ErrInstantiationFaultSentinel)
}

func IsEmptyRequiredCollection(err error) bool {
	return Is(err, ErrEmptyRequiredCollectionSentinel)
}

func IsCircularDependency(err error) bool {
	return Is(err, ErrCircularDependencySentinel)
}

func IsRuntimeClosed(err error) bool {
	return Is(err, ErrRuntimeClosed)
}
