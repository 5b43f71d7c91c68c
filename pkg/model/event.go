package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DataType hints at which payload variant an event carries. The Data tag is
// canonical; a DataType, when present, must agree with it.
type DataType string

const (
	DataTypeJSON   DataType = "json"
	DataTypeString DataType = "string"
	DataTypeBinary DataType = "binary"
)

// Data is an event's payload: a JSON object, a plain string, or raw bytes.
// On the wire it is a tagged union: {"type": "json"|"string"|"binary",
// "content": …}. Binary content is carried base64-encoded.
type Data struct {
	Type   DataType
	Object map[string]any
	Text   string
	Bytes  []byte
}

// NewJSONData builds a JSON-object payload.
func NewJSONData(object map[string]any) Data {
	return Data{Type: DataTypeJSON, Object: object}
}

// NewStringData builds a plain-string payload.
func NewStringData(text string) Data {
	return Data{Type: DataTypeString, Text: text}
}

// NewBinaryData builds a raw-bytes payload.
func NewBinaryData(content []byte) Data {
	return Data{Type: DataTypeBinary, Bytes: content}
}

type dataEnvelope struct {
	Type    DataType        `json:"type"`
	Content json.RawMessage `json:"content"`
}

func (d Data) MarshalJSON() ([]byte, error) {
	var content any
	switch d.Type {
	case DataTypeJSON:
		content = d.Object
	case DataTypeString:
		content = d.Text
	case DataTypeBinary:
		content = d.Bytes
	default:
		return nil, fmt.Errorf("cannot serialize data with unknown type %q", d.Type)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(dataEnvelope{Type: d.Type, Content: raw})
}

func (d *Data) UnmarshalJSON(b []byte) error {
	var env dataEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	switch env.Type {
	case DataTypeJSON:
		var object map[string]any
		if err := json.Unmarshal(env.Content, &object); err != nil {
			return fmt.Errorf("json data content must be an object: %w", err)
		}
		*d = NewJSONData(object)
	case DataTypeString:
		var text string
		if err := json.Unmarshal(env.Content, &text); err != nil {
			return fmt.Errorf("string data content: %w", err)
		}
		*d = NewStringData(text)
	case DataTypeBinary:
		var content []byte
		if err := json.Unmarshal(env.Content, &content); err != nil {
			return fmt.Errorf("binary data content: %w", err)
		}
		*d = NewBinaryData(content)
	default:
		return fmt.Errorf("unknown data type %q", env.Type)
	}
	return nil
}

// Event is a self-describing message flowing through the gateway. Events are
// ephemeral: they live only for the duration of one request.
type Event struct {
	ID                uuid.UUID         `json:"id"`
	EventType         string            `json:"eventType"`
	EventVersion      *string           `json:"eventVersion,omitempty"`
	Metadata          map[string]string `json:"metadata"`
	TransportMetadata map[string]string `json:"transportMetadata,omitempty"`
	DataType          *DataType         `json:"dataType,omitempty"`
	Data              Data              `json:"data"`
	Timestamp         *time.Time        `json:"timestamp,omitempty"`
	Origin            *string           `json:"origin,omitempty"`
}

// UnmarshalJSON decodes an event and enforces the structural invariants:
// eventType must be non-empty, a payload must be present, and dataType, when
// given, must agree with the payload's own tag.
func (e *Event) UnmarshalJSON(b []byte) error {
	type alias Event
	var decoded alias
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	if decoded.EventType == "" {
		return fmt.Errorf("event: eventType must not be empty")
	}
	if decoded.Data.Type == "" {
		return fmt.Errorf("event: data is required")
	}
	if decoded.DataType != nil && *decoded.DataType != decoded.Data.Type {
		return fmt.Errorf("event: dataType %q disagrees with data payload %q", *decoded.DataType, decoded.Data.Type)
	}
	*e = Event(decoded)
	return nil
}
