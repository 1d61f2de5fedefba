package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func noopCapability(ctx context.Context, args json.RawMessage) (ToolReturn, error) {
	return EmptyReturn(), nil
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(ToolSchema{Name: "echo"}, CapabilityFunc(noopCapability)); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.Register(ToolSchema{Name: "echo"}, CapabilityFunc(noopCapability))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	_, _, err := reg.Resolve("ghost")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestSchemasSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := reg.Register(ToolSchema{Name: name}, CapabilityFunc(noopCapability)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	schemas := reg.Schemas()
	if len(schemas) != 3 {
		t.Fatalf("expected 3 schemas, got %d", len(schemas))
	}
	if schemas[0].Name != "alpha" || schemas[2].Name != "zeta" {
		t.Fatalf("schemas not in name order: %+v", schemas)
	}
}

func TestInputSchema(t *testing.T) {
	schema := ToolSchema{
		Name: "search",
		Params: []Param{
			{Name: "topic", Type: TypeString, Description: "what to look for", Required: true},
			{Name: "max_results", Type: TypeInteger, Default: 5},
		},
	}

	var doc map[string]any
	if err := json.Unmarshal(schema.InputSchema(), &doc); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if doc["type"] != "object" {
		t.Fatalf("expected object schema, got %v", doc["type"])
	}
	props := doc["properties"].(map[string]any)
	topic := props["topic"].(map[string]any)
	if topic["type"] != "string" || topic["description"] != "what to look for" {
		t.Fatalf("unexpected topic property: %v", topic)
	}
	required := doc["required"].([]any)
	if len(required) != 1 || required[0] != "topic" {
		t.Fatalf("unexpected required list: %v", required)
	}
	maxResults := props["max_results"].(map[string]any)
	if maxResults["default"] != float64(5) {
		t.Fatalf("default missing: %v", maxResults)
	}
}
