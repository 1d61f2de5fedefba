// Package schema derives tool parameter descriptors from Go struct types.
package schema

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/paperloop/paperloop/agent"
)

// ParamsFromStruct derives an ordered parameter list from a struct type's
// json and jsonschema tags. Fields tagged omitempty become optional;
// `jsonschema:"default=..."` tags populate the parameter default.
func ParamsFromStruct(value any) ([]agent.Param, error) {
	if value == nil {
		return nil, fmt.Errorf("schema: nil value")
	}
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: expected struct, got %s", t.Kind())
	}

	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		Anonymous:                 true,
		AllowAdditionalProperties: true,
	}
	doc := reflector.Reflect(value)
	if doc.Properties == nil {
		return nil, nil
	}

	required := make(map[string]bool, len(doc.Required))
	for _, name := range doc.Required {
		required[name] = true
	}

	params := make([]agent.Param, 0, doc.Properties.Len())
	for pair := doc.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		params = append(params, agent.Param{
			Name:        pair.Key,
			Type:        agent.ParamType(prop.Type),
			Description: prop.Description,
			Required:    required[pair.Key],
			Default:     prop.Default,
		})
	}
	return params, nil
}

// MustParams is ParamsFromStruct for static tool declarations.
func MustParams(value any) []agent.Param {
	params, err := ParamsFromStruct(value)
	if err != nil {
		panic(err)
	}
	return params
}
