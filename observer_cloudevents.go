package flowkernel

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is the event envelope handed to observers.
type CloudEvent = cloudevents.Event

// NewCloudEvent builds a v1.0 event with a time-ordered id. data is encoded as
// JSON when present; extensions become CloudEvents extension attributes.
func NewCloudEvent(eventType, source string, data any, extensions map[string]any) cloudevents.Event {
	ev := cloudevents.NewEvent(cloudevents.VersionV1)
	ev.SetID(newEventID())
	ev.SetType(eventType)
	ev.SetSource(source)
	ev.SetTime(time.Now())
	if data != nil {
		_ = ev.SetData(cloudevents.ApplicationJSON, data)
	}
	for name, v := range extensions {
		ev.SetExtension(name, v)
	}
	return ev
}

func newEventID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ValidateCloudEvent checks the required CloudEvents attributes of event.
func ValidateCloudEvent(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event %q: %w", event.Type(), err)
	}
	return nil
}
