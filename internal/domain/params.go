package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Value is a tagged parameter value.
type Value struct {
	Type   ParamType
	String string
	Number float64
	Bool   bool
	JSON   json.RawMessage
}

func StringValue(s string) Value  { return Value{Type: ParamString, String: s} }
func NumberValue(n float64) Value { return Value{Type: ParamNumber, Number: n} }
func BoolValue(b bool) Value      { return Value{Type: ParamBoolean, Bool: b} }
func JSONValue(raw []byte) Value  { return Value{Type: ParamJSON, JSON: json.RawMessage(raw)} }

// Text renders the value for use in a path segment or query string.
func (v Value) Text() string {
	switch v.Type {
	case ParamString:
		return v.String
	case ParamNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ParamBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return string(v.JSON)
	}
}

// Any returns the value as a plain Go value suitable for a JSON body.
func (v Value) Any() any {
	switch v.Type {
	case ParamString:
		return v.String
	case ParamNumber:
		return v.Number
	case ParamBoolean:
		return v.Bool
	default:
		return v.JSON
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case ParamString:
		return json.Marshal(v.String)
	case ParamNumber:
		return json.Marshal(v.Number)
	case ParamBoolean:
		return json.Marshal(v.Bool)
	case ParamJSON:
		if len(v.JSON) == 0 {
			return []byte("null"), nil
		}
		return v.JSON, nil
	}
	return nil, fmt.Errorf("unknown value type %q", v.Type)
}

// UnmarshalJSON infers the tag from the JSON token kind. Objects and arrays
// become ParamJSON.
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return errors.New("null parameter value")
	}
	switch b[0] {
	case '"':
		v.Type = ParamString
		return json.Unmarshal(b, &v.String)
	case 't', 'f':
		v.Type = ParamBoolean
		return json.Unmarshal(b, &v.Bool)
	case '{', '[':
		v.Type = ParamJSON
		v.JSON = append(json.RawMessage(nil), b...)
		return nil
	default:
		v.Type = ParamNumber
		return json.Unmarshal(b, &v.Number)
	}
}

// Parameters maps declared parameter names to values.
type Parameters map[string]Value

// Merge returns a copy of p with every entry of over applied on top.
func (p Parameters) Merge(over Parameters) Parameters {
	out := make(Parameters, len(p)+len(over))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (p Parameters) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Encode serializes p for the history input column. A nil map encodes as {}.
func (p Parameters) Encode() string {
	if p == nil {
		return "{}"
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// DecodeParams parses a serialized input column into plain values.
func DecodeParams(raw string) (map[string]any, error) {
	out := map[string]any{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}, fmt.Errorf("decode params: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// ValidateParams checks p against the API's declared parameters. Unknown
// names and type mismatches are rejected, as are missing required names and
// missing URI placeholders.
func (a APIDefinition) ValidateParams(p Parameters) error {
	for _, name := range p.Names() {
		def, ok := a.Param(name)
		if !ok {
			return invalid("params."+name, "not declared by api %q", a.Name)
		}
		v := p[name]
		if def.Type == ParamJSON {
			continue
		}
		if v.Type != def.Type {
			return invalid("params."+name, "want %s, got %s", def.Type, v.Type)
		}
	}
	for _, def := range a.Params {
		if _, ok := p[def.Name]; def.Required && !ok {
			return invalid("params."+def.Name, "required")
		}
	}
	// a path placeholder cannot be left empty, whatever its declaration says
	for _, name := range PathParams(a.URI) {
		if _, ok := p[name]; !ok {
			return invalid("params."+name, "required by uri %s", a.URI)
		}
	}
	return nil
}
