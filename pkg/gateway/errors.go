package gateway

import (
	"fmt"

	"github.com/google/uuid"
)

// SchemaInvalidError reports that a validator rejected the event's payload.
// It is a client fault.
type SchemaInvalidError struct {
	SchemaName string
	Reason     string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("event payload does not match schema %s: %s", e.SchemaName, e.Reason)
}

// NoTopicError reports that no routing rule matched the event. It is a
// client or configuration fault.
type NoTopicError struct {
	EventID uuid.UUID
}

func (e *NoTopicError) Error() string {
	return fmt.Sprintf("no topic to route event %s", e.EventID)
}

// NotFoundError reports that an admin operation targeted a missing record.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no record with id %s", e.ID)
}

// InvalidInputError reports that an admin write carried a structurally
// invalid record.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return e.Reason
}

// InternalError wraps storage, publisher, and unexpected failures. Details
// go to logs; clients only see the class.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func internal(err error) error {
	return &InternalError{Err: err}
}
