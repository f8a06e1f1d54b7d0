// Package schemacheck validates event payloads against a versioned JSON
// Schema before they are persisted, catching malformed events from a
// misbehaving agent routine before they reach the Event Store.
package schemacheck

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentcore/agentcore/internal/events"
)

// schemaV2 describes the event envelope for SchemaVersion 2. Payload fields
// are all optional at the schema level since each event type only populates
// a subset; type-specific required-ness is enforced by the executor/writer,
// not here.
const schemaV2 = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"$id": "https://agentcore.dev/schema/event-v2.json",
	"type": "object",
	"required": ["v", "type", "id", "ts"],
	"properties": {
		"v": { "const": 2 },
		"type": {
			"type": "string",
			"enum": [
				"start", "thinking", "plan", "tool_start", "tool_end",
				"subagent_start", "subagent_end", "content_start", "content",
				"content_end", "status", "end", "error"
			]
		},
		"id": { "type": "string", "pattern": "^[0-9]+_[0-9]{4}_[0-9a-f]{8}$" },
		"ts": { "type": "string" },
		"message_id": { "type": "string" },
		"chat_id": { "type": "string" }
	}
}`

// Validator compiles and holds the event-envelope schema for one schema
// version.
type Validator struct {
	schema *jsonschema.Schema
}

// NewV2Validator compiles the v2 event envelope schema.
func NewV2Validator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	url := "https://agentcore.dev/schema/event-v2.json"
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(schemaV2)))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate checks ev's JSON representation against the compiled schema.
func (v *Validator) Validate(ev events.Event) error {
	raw, err := eventToJSONAny(ev)
	if err != nil {
		return fmt.Errorf("marshal event for validation: %w", err)
	}
	if err := v.schema.Validate(raw); err != nil {
		return fmt.Errorf("event failed schema validation: %w", err)
	}
	return nil
}

func eventToJSONAny(ev events.Event) (any, error) {
	buf, err := marshalEvent(ev)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(buf))
}
