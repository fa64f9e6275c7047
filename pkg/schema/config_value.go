package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// ValueKind tags the variant held by a ConfigValue.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	}
	return "null"
}

// ConfigValue is a closed sum type for node configuration values:
// string, number, bool, or a list of strings (multiselect and list defaults).
// The zero value is null.
type ConfigValue struct {
	kind ValueKind
	s    string
	n    float64
	b    bool
	l    []string
}

func StringValue(s string) ConfigValue  { return ConfigValue{kind: KindString, s: s} }
func NumberValue(n float64) ConfigValue { return ConfigValue{kind: KindNumber, n: n} }
func BoolValue(b bool) ConfigValue      { return ConfigValue{kind: KindBool, b: b} }

// ListValue copies items so the caller can keep mutating its slice.
func ListValue(items ...string) ConfigValue {
	l := make([]string, len(items))
	copy(l, items)
	return ConfigValue{kind: KindList, l: l}
}

func (v ConfigValue) Kind() ValueKind { return v.kind }
func (v ConfigValue) IsNull() bool    { return v.kind == KindNull }

func (v ConfigValue) AsString() (string, bool)  { return v.s, v.kind == KindString }
func (v ConfigValue) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }
func (v ConfigValue) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }

// AsList returns a copy of the list items.
func (v ConfigValue) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.l), true
}

// Interface returns the value as a plain Go value (string, float64, bool,
// []any or nil), suitable for expression engines.
func (v ConfigValue) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.l))
		for i, s := range v.l {
			out[i] = s
		}
		return out
	}
	return nil
}

// Equal reports whether two values hold the same variant and contents.
func (v ConfigValue) Equal(o ConfigValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	case KindList:
		return slices.Equal(v.l, o.l)
	}
	return true
}

func (v ConfigValue) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindList:
		return fmt.Sprintf("%v", v.l)
	}
	return "null"
}

func (v ConfigValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	}
	return []byte("null"), nil
}

func (v *ConfigValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("config value: empty input")
	}
	switch data[0] {
	case 'n':
		*v = ConfigValue{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
		return nil
	case '[':
		var l []string
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("config value: lists must contain strings: %w", err)
		}
		*v = ConfigValue{kind: KindList, l: l}
		if v.l == nil {
			v.l = []string{}
		}
		return nil
	case '{':
		return fmt.Errorf("config value: objects are not supported")
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("config value: %w", err)
	}
	*v = NumberValue(n)
	return nil
}

// Config maps configuration keys to values.
type Config map[string]ConfigValue

// Clone returns a deep copy of the config. A nil config clones to an empty one.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		if v.kind == KindList {
			v = ListValue(v.l...)
		}
		out[k] = v
	}
	return out
}

// Plain converts the config to a map of plain Go values.
func (c Config) Plain() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v.Interface()
	}
	return out
}
