package agent

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool represents a function the model can invoke while answering.
type Tool struct {
	// Name is the unique identifier for the tool (e.g., "play_action").
	Name string `json:"name"`

	// Description explains what the tool does, helping the model decide when to use it.
	Description string `json:"description"`

	// Parameters is the JSON schema of the arguments. Nil means no arguments.
	Parameters map[string]any `json:"parameters"`

	// Handler runs the tool with the raw JSON arguments. The returned string
	// is sent back to the model.
	Handler func(ctx context.Context, args json.RawMessage) (string, error) `json:"-"`
}

// ContextBlock is named reference text appended to the instructions.
type ContextBlock struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// BuildInstructions appends the context blocks to base.
func BuildInstructions(base string, blocks []ContextBlock) string {
	var parts []string
	for _, b := range blocks {
		name := b.Name
		if name == "" {
			name = "context"
		}
		parts = append(parts, "Context \""+name+"\":\n"+strings.TrimSpace(b.Text))
	}
	if len(parts) == 0 {
		return base
	}
	return base + "\n\nUse the following page context when answering:\n\n" + strings.Join(parts, "\n\n")
}

// PropType is a scalar JSON schema type.
type PropType string

const (
	TypeString  PropType = "string"
	TypeNumber  PropType = "number"
	TypeBoolean PropType = "boolean"
)

// Prop describes one tool argument.
type Prop struct {
	Name     string
	Type     PropType // defaults to string
	Required bool

	// Array marks the argument as a list. With Items set it is a list of
	// objects with those fields, otherwise a list of strings.
	Array bool
	Items []Prop
}

// Schema builds an object schema from props.
func Schema(props ...Prop) map[string]any {
	properties := map[string]any{}
	required := []string{}
	for _, p := range props {
		if p.Name == "" {
			continue
		}
		properties[p.Name] = p.schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func (p Prop) schema() map[string]any {
	if p.Array {
		if len(p.Items) > 0 {
			return map[string]any{"type": "array", "items": Schema(p.Items...)}
		}
		return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	}
	t := p.Type
	if t == "" {
		t = TypeString
	}
	return map[string]any{"type": string(t)}
}
