package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ValueKind discriminates the frontmatter value union.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a tagged union over the YAML value shapes that may appear in
// frontmatter. Arbitrary extra keys are preserved with full fidelity so a
// note round-trips without reflection over untyped interfaces.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []Value
	Map  map[string]Value
}

// StringValue constructs a string Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// UnmarshalYAML decodes a YAML node into the union.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!int", "!!float":
			var f float64
			if err := node.Decode(&f); err != nil {
				// Oversized integers stay as strings.
				*v = Value{Kind: KindString, Str: node.Value}
				return nil
			}
			*v = Value{Kind: KindNumber, Num: f}
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return err
			}
			*v = Value{Kind: KindBool, Bool: b}
		default:
			// Strings, timestamps, nulls all keep their scalar text.
			*v = Value{Kind: KindString, Str: node.Value}
		}
	case yaml.SequenceNode:
		list := make([]Value, 0, len(node.Content))
		for _, item := range node.Content {
			var elem Value
			if err := elem.UnmarshalYAML(item); err != nil {
				return err
			}
			list = append(list, elem)
		}
		*v = Value{Kind: KindList, List: list}
	case yaml.MappingNode:
		m := make(map[string]Value, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var elem Value
			if err := elem.UnmarshalYAML(node.Content[i+1]); err != nil {
				return err
			}
			m[node.Content[i].Value] = elem
		}
		*v = Value{Kind: KindMap, Map: m}
	case yaml.AliasNode:
		return v.UnmarshalYAML(node.Alias)
	default:
		return fmt.Errorf("frontmatter: unsupported YAML node kind %d", node.Kind)
	}
	return nil
}

// MarshalJSON renders the union as the natural JSON shape.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		return json.Marshal(v.List)
	case KindMap:
		return json.Marshal(v.Map)
	}
	return []byte("null"), nil
}

// AsString returns the scalar text and true when the value is a string.
func (v Value) AsString() (string, bool) {
	if v.Kind == KindString {
		return v.Str, true
	}
	return "", false
}

// StringList normalizes a string into a one-element list and a list into
// its string elements. Non-string elements are skipped.
func (v Value) StringList() []string {
	switch v.Kind {
	case KindString:
		if v.Str == "" {
			return nil
		}
		return []string{v.Str}
	case KindList:
		out := make([]string, 0, len(v.List))
		for _, e := range v.List {
			if s, ok := e.AsString(); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
