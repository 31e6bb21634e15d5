package flowkernel

import (
	"context"
	"slices"
	"sort"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// subscription is one registered observer; an empty types set matches all.
type subscription struct {
	observer     Observer
	types        map[string]bool
	registeredAt time.Time
}

func (s *subscription) matches(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

var _ Subject = (*Container)(nil)

// RegisterObserver adds an observer to receive the container's events.
// If eventTypes is empty, the observer receives all events. Registering an
// observer ID again replaces the earlier registration.
func (c *Container) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrHandlerNil
	}
	c.observerMutex.Lock()
	defer c.observerMutex.Unlock()

	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}
	c.observers[observer.ObserverID()] = &subscription{
		observer:     observer,
		types:        types,
		registeredAt: time.Now(),
	}

	c.logger.Debug("Observer registered", "container", c.name, "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. It is idempotent.
func (c *Container) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return nil
	}
	c.observerMutex.Lock()
	defer c.observerMutex.Unlock()

	if _, exists := c.observers[observer.ObserverID()]; exists {
		delete(c.observers, observer.ObserverID())
		c.logger.Debug("Observer unregistered", "container", c.name, "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers sends a CloudEvent to all registered observers and forwards
// it to the parent container. Observers run on their own goroutines unless ctx
// requests synchronous delivery.
func (c *Container) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		c.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return err
	}

	c.observerMutex.RLock()
	matched := make([]*subscription, 0, len(c.observers))
	for _, sub := range c.observers {
		if sub.matches(event.Type()) {
			matched = append(matched, sub)
		}
	}
	c.observerMutex.RUnlock()

	synchronous := IsSynchronousNotification(ctx)
	for _, sub := range matched {
		sub := sub
		deliver := func() {
			id := sub.observer.ObserverID()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("Observer panicked", "observerID", id, "event", event.Type(), "panic", r)
				}
			}()
			if err := sub.observer.OnEvent(ctx, event); err != nil {
				c.logger.Error("Observer error", "observerID", id, "event", event.Type(), "error", err)
			}
		}
		if synchronous {
			deliver()
		} else {
			go deliver()
		}
	}

	if c.parent != nil {
		return c.parent.NotifyObservers(ctx, event)
	}
	return nil
}

// GetObservers lists the subscriptions ordered by observer id.
func (c *Container) GetObservers() []ObserverInfo {
	c.observerMutex.RLock()
	defer c.observerMutex.RUnlock()

	info := make([]ObserverInfo, 0, len(c.observers))
	for id, sub := range c.observers {
		types := make([]string, 0, len(sub.types))
		for t := range sub.types {
			types = append(types, t)
		}
		slices.Sort(types)
		info = append(info, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: sub.registeredAt})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].ID < info[j].ID })
	return info
}

// source is the CloudEvent source of the container's events.
func (c *Container) source() string {
	if c.parent == nil {
		return "flowkernel/" + c.name
	}
	return c.parent.source() + "/" + c.name
}

// publish turns a notifier invocation into a CloudEvent.
func (c *Container) publish(kind EventKind, data map[string]any) {
	c.emitEvent(context.Background(), kind.CloudEventType(), data, map[string]any{
		"container": c.name,
	})
}

// emitEvent publishes an event sourced at the container. Nothing is built
// when no observer could receive it.
func (c *Container) emitEvent(ctx context.Context, eventType string, data any, metadata map[string]any) {
	c.observerMutex.RLock()
	idle := len(c.observers) == 0 && c.parent == nil
	c.observerMutex.RUnlock()
	if idle {
		return
	}

	event := NewCloudEvent(eventType, c.source(), data, metadata)
	if err := c.NotifyObservers(ctx, event); err != nil {
		c.logger.Error("Failed to notify observers", "event", eventType, "error", err)
	}
}
