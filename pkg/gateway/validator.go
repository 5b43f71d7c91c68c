package gateway

import (
	"github.com/illmade-knight/go-event-gateway/pkg/model"
)

// validateEvent checks the event's payload against the schemas registered for
// its destination topic.
//
// Only schemas whose event type and version exactly match the event's are
// selected (versions match when both are absent or both equal). Non-JSON
// payloads skip validation entirely, and an event with no selected schemas is
// accepted. The event must satisfy every selected schema; the first failing
// one determines the error.
func validateEvent(event *model.Event, schemas []model.DataSchema) *SchemaInvalidError {
	if event.Data.Type != model.DataTypeJSON {
		return nil
	}

	for _, schema := range schemas {
		if !schema.AppliesTo(event.EventType, event.EventVersion) {
			continue
		}
		violations, err := schema.Schema.Validate(event.Data.Object)
		if err != nil {
			return &SchemaInvalidError{SchemaName: schema.Name, Reason: err.Error()}
		}
		if len(violations) > 0 {
			return &SchemaInvalidError{SchemaName: schema.Name, Reason: violations[0].Error()}
		}
	}
	return nil
}
