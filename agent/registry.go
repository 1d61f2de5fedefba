package agent

import (
	"fmt"
	"sort"
	"sync"
)

type entry struct {
	schema     ToolSchema
	capability Capability
}

// Registry maps tool names to their schema and capability. It is populated
// once at startup and read-only afterwards; the mutex only guards against
// misuse during concurrent setup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

// Register binds a schema to a capability. Registering a name twice fails
// with ErrDuplicateTool.
func (r *Registry) Register(schema ToolSchema, capability Capability) error {
	if schema.Name == "" {
		return fmt.Errorf("register: tool has empty name")
	}
	if capability == nil {
		return fmt.Errorf("register %s: nil capability", schema.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[schema.Name]; ok {
		return fmt.Errorf("register %s: %w", schema.Name, ErrDuplicateTool)
	}
	r.tools[schema.Name] = entry{schema: schema, capability: capability}
	return nil
}

// RegisterTool registers a Tool value.
func (r *Registry) RegisterTool(tools ...Tool) error {
	for _, tool := range tools {
		if err := r.Register(tool.Schema(), tool); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the capability and schema for a name.
func (r *Registry) Resolve(name string) (Capability, ToolSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, ToolSchema{}, fmt.Errorf("resolve %s: %w", name, ErrUnknownTool)
	}
	return e.capability, e.schema, nil
}

// Schemas returns all registered schemas in stable name order. The full list
// is sent to the model gateway on every request.
func (r *Registry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, e := range r.tools {
		schemas = append(schemas, e.schema)
	}
	sort.Slice(schemas, func(i, j int) bool {
		return schemas[i].Name < schemas[j].Name
	})
	return schemas
}
