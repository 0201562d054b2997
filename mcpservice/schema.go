package mcpservice

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// reflectToMCPInputSchema reflects a Go type A into a jsonschema.Schema, and
// converts it to the simplified mcp.ToolInputSchema. Unknown field policy is
// surfaced via the AdditionalProperties flag on the returned schema.
//
// Struct tags drive the result: json names the property and marks it
// optional with omitempty; jsonschema carries description, enum, default,
// minimum and maximum.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	// Only object schemas map cleanly to MCP ToolInputSchema. If not an object,
	// expose an empty object with the configured additionalProperties policy.
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toMCPProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toMCPProperty recursively maps a jsonschema.Schema to the simplified MCP SchemaProperty.
func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Default != nil {
		p.Default = normalizeDefault(s.Type, s.Default)
	}
	if f, ok := numberBound(s.Minimum); ok {
		p.Minimum = &f
	}
	if f, ok := numberBound(s.Maximum); ok {
		p.Maximum = &f
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toMCPProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

func numberBound(n json.Number) (float64, bool) {
	if n == "" {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// normalizeDefault converts reflected defaults into the Go values the
// validator produces for the same type, so filled-in defaults and supplied
// values decode identically.
func normalizeDefault(typ string, v any) any {
	n, ok := v.(json.Number)
	if !ok {
		if s, isStr := v.(string); isStr && (typ == "integer" || typ == "number") {
			n, ok = json.Number(s), true
		}
	}
	if !ok {
		return v
	}
	switch typ {
	case "integer":
		if i, err := n.Int64(); err == nil {
			return i
		}
	case "number":
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return v
}

// checkInputSchema enforces that every required name is a declared property.
func checkInputSchema(s mcp.ToolInputSchema) error {
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return fmt.Errorf("required property %q is not declared", name)
		}
	}
	return nil
}
