package agent

import (
	"context"
	"encoding/json"
)

// ParamType enumerates the JSON types a tool parameter may declare.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
)

// Param describes one named tool parameter.
type Param struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// ToolSchema is the static descriptor for a tool. It is immutable once
// registered: created at startup, read by every gateway call and by the
// executor for argument validation.
type ToolSchema struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Params      []Param `json:"params,omitempty"`
}

// InputSchema renders the parameter list as a JSON Schema object document,
// the form the model gateway boundary expects.
func (s ToolSchema) InputSchema() json.RawMessage {
	properties := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// ToolCall is a model-issued request to invoke a tool. The ID is an opaque
// correlation token; the matching ToolResult must echo it.
type ToolCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// ToolResult is the normalized outcome of executing one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Capability executes a tool call against already-validated arguments and
// reports its raw outcome as a ToolReturn.
type Capability interface {
	Invoke(ctx context.Context, args json.RawMessage) (ToolReturn, error)
}

// CapabilityFunc adapts a function to a Capability.
type CapabilityFunc func(ctx context.Context, args json.RawMessage) (ToolReturn, error)

func (f CapabilityFunc) Invoke(ctx context.Context, args json.RawMessage) (ToolReturn, error) {
	return f(ctx, args)
}

// Tool bundles a schema with its capability.
type Tool interface {
	Schema() ToolSchema
	Capability
}
