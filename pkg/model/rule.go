package model

import (
	"fmt"

	"github.com/google/uuid"
)

// TopicRoutingRule maps matching events to a destination topic. Lower order
// means higher priority; ties are broken by ascending id. The topic of a rule
// is immutable for a given id: updates replace the whole record.
type TopicRoutingRule struct {
	ID                    uuid.UUID  `json:"id"`
	Order                 int        `json:"order"`
	Topic                 Topic      `json:"topic"`
	EventTypeCondition    Condition  `json:"eventTypeCondition"`
	EventVersionCondition *Condition `json:"eventVersionCondition,omitempty"`
	Description           *string    `json:"description,omitempty"`
}

// Validate checks the structural invariants a rule must satisfy before it is
// accepted by the store.
func (r TopicRoutingRule) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("routing rule: id is required")
	}
	if err := r.Topic.Validate(); err != nil {
		return fmt.Errorf("routing rule: %w", err)
	}
	if r.EventTypeCondition.IsZero() {
		return fmt.Errorf("routing rule: eventTypeCondition is required")
	}
	return nil
}

// Equal compares two rules structurally, with conditions compared by their
// own equality (regex by source pattern).
func (r TopicRoutingRule) Equal(other TopicRoutingRule) bool {
	if r.ID != other.ID || r.Order != other.Order || r.Topic != other.Topic {
		return false
	}
	if !r.EventTypeCondition.Equal(other.EventTypeCondition) {
		return false
	}
	if (r.EventVersionCondition == nil) != (other.EventVersionCondition == nil) {
		return false
	}
	if r.EventVersionCondition != nil && !r.EventVersionCondition.Equal(*other.EventVersionCondition) {
		return false
	}
	if (r.Description == nil) != (other.Description == nil) {
		return false
	}
	if r.Description != nil && *r.Description != *other.Description {
		return false
	}
	return true
}
