package model

import (
	"encoding/json"
	"fmt"
)

const maxTopicLength = 255

// Topic is the name of a logical destination stream on the downstream broker.
// Topics must be non-empty, no longer than 255 characters, and contain only
// alphanumeric characters, dots, hyphens, and underscores.
type Topic string

// NewTopic validates s and returns it as a Topic.
func NewTopic(s string) (Topic, error) {
	if s == "" {
		return "", fmt.Errorf("topic cannot be empty")
	}
	if len(s) > maxTopicLength {
		return "", fmt.Errorf("topic is too long: %d characters (max: %d)", len(s), maxTopicLength)
	}
	for _, c := range s {
		if !isTopicChar(c) {
			return "", fmt.Errorf("topic contains invalid character %q", c)
		}
	}
	return Topic(s), nil
}

func isTopicChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == '-' || c == '_':
		return true
	}
	return false
}

func (t Topic) String() string {
	return string(t)
}

// Validate re-checks the topic against the construction rules. Useful for
// values built directly via conversion rather than NewTopic.
func (t Topic) Validate() error {
	_, err := NewTopic(string(t))
	return err
}

// UnmarshalJSON decodes the topic from its plain string form and rejects
// invalid names at the boundary.
func (t *Topic) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	topic, err := NewTopic(s)
	if err != nil {
		return err
	}
	*t = topic
	return nil
}
