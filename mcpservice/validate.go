package mcpservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// ValidationKind classifies a ValidationError.
type ValidationKind int

const (
	MissingRequired ValidationKind = iota + 1
	TypeMismatch
	EnumViolation
	RangeViolation
	UnknownProperty
)

func (k ValidationKind) String() string {
	switch k {
	case MissingRequired:
		return "missing_required"
	case TypeMismatch:
		return "type_mismatch"
	case EnumViolation:
		return "enum_violation"
	case RangeViolation:
		return "range_violation"
	case UnknownProperty:
		return "unknown_property"
	default:
		return "unknown"
	}
}

// ValidationError describes the first violation found while validating tool
// arguments against a ToolInputSchema.
type ValidationError struct {
	Kind    ValidationKind
	Field   string
	Allowed []string // EnumViolation only
	Detail  string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case MissingRequired:
		return fmt.Sprintf("missing required argument: %s", e.Field)
	case EnumViolation:
		return fmt.Sprintf("invalid value for argument %s: must be one of [%s]", e.Field, strings.Join(e.Allowed, ", "))
	case UnknownProperty:
		return fmt.Sprintf("unknown argument: %s", e.Field)
	}
	if e.Field == "" {
		return e.Detail
	}
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Detail)
}

// Validate checks raw tool arguments against schema and returns a normalized
// argument object: numeric strings coerced, integers as int64, numbers as
// float64, absent optional properties with a default filled in and nulls
// dropped. raw is never modified. An empty or null raw value is an empty
// object.
func Validate(schema mcp.ToolInputSchema, raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, &ValidationError{Kind: TypeMismatch, Detail: "arguments must be a JSON object"}
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, &ValidationError{Kind: TypeMismatch, Detail: "arguments must be a JSON object"}
		}
		args = obj
	}

	out := make(map[string]any, len(schema.Properties))

	for _, name := range schema.Required {
		if v, ok := args[name]; !ok || v == nil {
			return nil, &ValidationError{Kind: MissingRequired, Field: name}
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := args[name]
		prop, declared := schema.Properties[name]
		if !declared {
			if !schema.AdditionalProperties {
				return nil, &ValidationError{Kind: UnknownProperty, Field: name}
			}
			if v != nil {
				out[name] = v
			}
			continue
		}
		if v == nil {
			continue
		}
		nv, err := validateValue(prop, v, name)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) && ve.Kind == TypeMismatch && ve.Field == name && prop.Default != nil {
				out[name] = prop.Default
				continue
			}
			return nil, err
		}
		out[name] = nv
	}

	for name, prop := range schema.Properties {
		if _, ok := out[name]; ok || prop.Default == nil {
			continue
		}
		out[name] = prop.Default
	}
	return out, nil
}

func validateValue(p mcp.SchemaProperty, v any, field string) (any, error) {
	var out any
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, mismatch(field, "string")
		}
		out = s
	case "integer":
		i, ok := toInteger(v)
		if !ok {
			return nil, mismatch(field, "integer")
		}
		if err := checkRange(p, float64(i), field); err != nil {
			return nil, err
		}
		out = i
	case "number":
		f, ok := toNumber(v)
		if !ok {
			return nil, mismatch(field, "number")
		}
		if err := checkRange(p, f, field); err != nil {
			return nil, err
		}
		out = f
	case "boolean":
		b, ok := v.(bool)
		if !ok {
			return nil, mismatch(field, "boolean")
		}
		out = b
	case "array":
		items, ok := v.([]any)
		if !ok {
			return nil, mismatch(field, "array")
		}
		norm := make([]any, len(items))
		for i, item := range items {
			if p.Items == nil {
				norm[i] = item
				continue
			}
			nv, err := validateValue(*p.Items, item, fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			norm[i] = nv
		}
		out = norm
	case "object":
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, mismatch(field, "object")
		}
		norm := make(map[string]any, len(obj))
		for k, val := range obj {
			sub, declared := p.Properties[k]
			if !declared || val == nil {
				norm[k] = val
				continue
			}
			nv, err := validateValue(sub, val, field+"."+k)
			if err != nil {
				return nil, err
			}
			norm[k] = nv
		}
		out = norm
	default:
		out = v
	}

	if len(p.Enum) > 0 && !enumContains(p.Enum, out) {
		allowed := make([]string, len(p.Enum))
		for i, e := range p.Enum {
			allowed[i] = fmt.Sprint(e)
		}
		return nil, &ValidationError{Kind: EnumViolation, Field: field, Allowed: allowed}
	}
	return out, nil
}

func mismatch(field, want string) *ValidationError {
	return &ValidationError{Kind: TypeMismatch, Field: field, Detail: "expected " + want}
}

func toInteger(v any) (int64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		pf, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = pf
	case float64:
		f = x
	case int64:
		return x, true
	case int:
		return int64(x), true
	case string:
		s := strings.TrimSpace(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		pf, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = pf
	default:
		return 0, false
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func checkRange(p mcp.SchemaProperty, f float64, field string) error {
	if p.Minimum != nil && f < *p.Minimum {
		return &ValidationError{Kind: RangeViolation, Field: field, Detail: fmt.Sprintf("must be >= %s", formatBound(*p.Minimum))}
	}
	if p.Maximum != nil && f > *p.Maximum {
		return &ValidationError{Kind: RangeViolation, Field: field, Detail: fmt.Sprintf("must be <= %s", formatBound(*p.Maximum))}
	}
	return nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func enumContains(enum []any, v any) bool {
	got := fmt.Sprint(v)
	for _, e := range enum {
		if fmt.Sprint(e) == got {
			return true
		}
	}
	return false
}
