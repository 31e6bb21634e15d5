package flowkernel

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer receives the CloudEvents a container publishes for every notifier
// invocation and for kernel activity. Observers run outside the structural
// lock and must not block for long.
type Observer interface {
	OnEvent(ctx context.Context, event cloudevents.Event) error
	// ObserverID identifies the observer for UnregisterObserver and GetObservers.
	ObserverID() string
}

// Subject is implemented by Container.
type Subject interface {
	// RegisterObserver subscribes o to eventTypes, or to every event when none
	// are given. Registering an id again replaces the earlier subscription.
	RegisterObserver(o Observer, eventTypes ...string) error
	// UnregisterObserver is a no-op for unknown observers.
	UnregisterObserver(o Observer) error
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a subscription.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Event types published by containers and the kernel.
const (
	EventTypeModuleAssociated = "com.flowkernel.module.associated"
	EventTypeModuleReady      = "com.flowkernel.module.ready"
	EventTypeModuleRemoved    = "com.flowkernel.module.removed"
	EventTypeModuleError      = "com.flowkernel.module.error"

	EventTypeConnectionEstablished = "com.flowkernel.connection.established"
	EventTypeConnectionClosed      = "com.flowkernel.connection.closed"

	EventTypeKernelStarted    = "com.flowkernel.kernel.started"
	EventTypeKernelStopped    = "com.flowkernel.kernel.stopped"
	EventTypeProjectLoaded    = "com.flowkernel.project.loaded"
	EventTypeConfigReloaded   = "com.flowkernel.config.reloaded"
	EventTypeProgressReported = "com.flowkernel.progress.reported"
)

// EventHandlerFunc handles one event.
type EventHandlerFunc func(ctx context.Context, event cloudevents.Event) error

type funcObserver struct {
	id string
	fn EventHandlerFunc
}

func (o funcObserver) OnEvent(ctx context.Context, event cloudevents.Event) error { return o.fn(ctx, event) }
func (o funcObserver) ObserverID() string                                        { return o.id }

// NewFunctionalObserver wraps fn as an Observer named id.
func NewFunctionalObserver(id string, fn EventHandlerFunc) Observer {
	return funcObserver{id: id, fn: fn}
}

type synchronousKey struct{}

// WithSynchronousNotification asks containers to deliver events on the
// calling goroutine. Tests and the kernel use it where ordering matters.
func WithSynchronousNotification(ctx context.Context) context.Context {
	return context.WithValue(ctx, synchronousKey{}, true)
}

// IsSynchronousNotification reports whether ctx carries WithSynchronousNotification.
func IsSynchronousNotification(ctx context.Context) bool {
	sync, _ := ctx.Value(synchronousKey{}).(bool)
	return sync
}
