package locator

import (
	"github.com/xraph/locator/errors"
)

// LocatorError is the structured error returned by lookups and attachment.
type LocatorError = errors.LocatorError

// Re-export sentinel errors for comparison using errors.Is().
var (
	ErrRuntimeClosed                   = errors.ErrRuntimeClosed
	ErrCapabilityUnresolvedSentinel    = errors.ErrCapabilityUnresolvedSentinel
	ErrEmptyRequiredCollectionSentinel = errors.ErrEmptyRequiredCollectionSentinel
	ErrMalformedDeclarationSentinel    = errors.ErrMalformedDeclarationSentinel
	ErrInstantiationFaultSentinel      = errors.ErrInstantiationFaultSentinel
	ErrCircularDependencySentinel      = errors.ErrCircularDependencySentinel
	ErrDepthExceededSentinel           = errors.ErrDepthExceededSentinel
	ErrInvalidConstructorSentinel      = errors.ErrInvalidConstructorSentinel
	ErrUnknownCapabilitySentinel       = errors.ErrUnknownCapabilitySentinel
)

// Re-export error helpers.
var (
	IsCapabilityUnresolved    = errors.IsCapabilityUnresolved
	IsEmptyRequiredCollection = errors.IsEmptyRequiredCollection
	IsMalformedDeclaration    = errors.IsMalformedDeclaration
	IsInstantiationFault      = errors.IsInstantiationFault
	IsCircularDependency      = errors.IsCircularDependency
	IsRuntimeClosed           = errors.IsRuntimeClosed

	// Chain returns the capabilities an unresolved error could not satisfy,
	// most specific first.
	Chain = errors.Chain
)
