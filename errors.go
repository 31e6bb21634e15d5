package flowkernel

import (
	"errors"
	"fmt"
)

// Kernel errors
var (
	// Structural errors
	ErrStructural         = errors.New("structural error")
	ErrNilConnector       = errors.New("connector is nil")
	ErrSelfConnect        = errors.New("connectors belong to the same module")
	ErrSameDirection      = errors.New("connectors have the same direction")
	ErrIncompatibleType   = errors.New("connectors transfer incompatible types")
	ErrForeignContainer   = errors.New("connectors belong to different containers")
	ErrModuleRemoved      = errors.New("module was removed from its container")
	ErrNotConnected       = errors.New("connectors are not connected")
	ErrUnknownDirection   = errors.New("unknown connector direction")
	ErrDuplicateConnector = errors.New("connector name already used")

	// Module errors
	ErrModuleNil               = errors.New("module is nil")
	ErrModuleNotFound          = errors.New("module not found")
	ErrModuleAlreadyAssociated = errors.New("module already associated with a container")
	ErrModuleNotAssociated     = errors.New("module not associated with this container")
	ErrConnectorsFinalized     = errors.New("connector set already finalized")
	ErrInvalidTransition       = errors.New("invalid module state transition")
	ErrImplementationNil       = errors.New("module implementation is nil")
	ErrNoDefaultConnector      = errors.New("module has no default connector")
	ErrModuleStopped           = errors.New("module stopped before it became ready")

	// Lookup errors raised by external drivers
	ErrConnectorNotFound = errors.New("connector not found")
	ErrPrototypeNotFound = errors.New("prototype not found")
	ErrPropertyNotFound  = errors.New("property not found")
	ErrPrototypeExists   = errors.New("prototype already registered")
	ErrPropertyNameUsed  = errors.New("property name already used")
	ErrPropertyValue     = errors.New("invalid property value")

	// Notifier errors
	ErrInvalidEventKind = errors.New("event kind not valid for this handler")
	ErrHandlerNil       = errors.New("notifier handler is nil")

	// Runtime errors
	ErrModuleRuntime = errors.New("module runtime failure")
	ErrModulePanic   = errors.New("module panicked")

	// Project file errors
	ErrProjectLine = errors.New("malformed project file line")

	// Kernel errors
	ErrKernelStarted    = errors.New("kernel already started")
	ErrKernelNotStarted = errors.New("kernel not started")
	ErrConfigNil        = errors.New("config is nil")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// StructuralError is returned when a connection request violates the graph rules:
// same direction, incompatible value types or connecting a module to itself.
// No state is mutated when it is returned.
type StructuralError struct {
	From   string
	To     string
	Reason error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("cannot connect %s with %s: %v", e.From, e.To, e.Reason)
}

// Unwrap exposes both the generic structural sentinel and the specific reason.
func (e *StructuralError) Unwrap() []error {
	return []error{ErrStructural, e.Reason}
}

func newStructuralError(a, b Connector, reason error) *StructuralError {
	return &StructuralError{From: canonicalNameOf(a), To: canonicalNameOf(b), Reason: reason}
}

// ConnectorNotFoundError reports a connector name that the module does not have.
type ConnectorNotFoundError struct {
	Module    string
	Connector string
	Direction Direction
}

func (e *ConnectorNotFoundError) Error() string {
	return fmt.Sprintf("module %q has no %s connector %q", e.Module, e.Direction, e.Connector)
}

func (e *ConnectorNotFoundError) Unwrap() error { return ErrConnectorNotFound }

// PrototypeNotFoundError reports an unknown prototype name.
type PrototypeNotFoundError struct {
	Name string
}

func (e *PrototypeNotFoundError) Error() string {
	return fmt.Sprintf("no prototype available for module %q", e.Name)
}

func (e *PrototypeNotFoundError) Unwrap() error { return ErrPrototypeNotFound }

// ModuleRuntimeError wraps anything that escaped a module body, either a returned
// error or a recovered panic.
type ModuleRuntimeError struct {
	Module string
	Handle Handle
	Cause  error
}

func (e *ModuleRuntimeError) Error() string {
	return fmt.Sprintf("module %q (%d) crashed: %v", e.Module, e.Handle, e.Cause)
}

func (e *ModuleRuntimeError) Unwrap() []error {
	return []error{ErrModuleRuntime, e.Cause}
}
