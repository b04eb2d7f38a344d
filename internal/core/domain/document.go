package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is a schemaless record addressed by dot paths such as
// "variants.0.color". Nested objects are map[string]interface{} and nested
// collections are []interface{}, the shapes encoding/json produces.
type Document map[string]interface{}

// Get reads the value at a dot path
func (d Document) Get(path string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(d)
	for _, segment := range strings.Split(path, ".") {
		if m, ok := asMap(current); ok {
			value, exists := m[segment]
			if !exists {
				return nil, false
			}
			current = value
			continue
		}

		list, ok := current.([]interface{})
		if !ok {
			return nil, false
		}
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(list) {
			return nil, false
		}
		current = list[idx]
	}
	return current, true
}

// Set writes a value at a dot path, creating intermediate objects and
// growing collections as needed. A numeric segment under a missing parent
// creates a collection.
func (d Document) Set(path string, value interface{}) {
	setIn(map[string]interface{}(d), strings.Split(path, "."), value)
}

func setIn(node interface{}, segments []string, value interface{}) interface{} {
	if len(segments) == 0 {
		return value
	}
	head, rest := segments[0], segments[1:]

	if m, ok := asMap(node); ok {
		m[head] = setIn(m[head], rest, value)
		return m
	}

	if idx, err := strconv.Atoi(head); err == nil && idx >= 0 {
		list, _ := node.([]interface{})
		for len(list) <= idx {
			list = append(list, nil)
		}
		list[idx] = setIn(list[idx], rest, value)
		return list
	}

	m := map[string]interface{}{}
	m[head] = setIn(nil, rest, value)
	return m
}

// Collection returns the elements of the collection at path. Elements that
// are not objects are returned as empty documents so indexes stay aligned.
func (d Document) Collection(path string) []Document {
	value, ok := d.Get(path)
	if !ok {
		return nil
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}

	out := make([]Document, len(list))
	for i, item := range list {
		if m, ok := asMap(item); ok {
			out[i] = Document(m)
		} else {
			out[i] = Document{}
		}
	}
	return out
}

// Clone returns a deep copy
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(deepCopy(map[string]interface{}(d)).(map[string]interface{}))
}

func deepCopy(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		out := make(map[string]interface{}, len(m))
		for key, value := range m {
			out[key] = deepCopy(value)
		}
		return out
	}
	if list, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, value := range list {
			out[i] = deepCopy(value)
		}
		return out
	}
	return v
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Document:
		return map[string]interface{}(t), true
	default:
		return nil, false
	}
}

// Value implements driver.Valuer so a Document can be stored in a JSONB column
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(d))
}

// Scan implements sql.Scanner
func (d *Document) Scan(src interface{}) error {
	var raw []byte
	switch t := src.(type) {
	case nil:
		*d = Document{}
		return nil
	case []byte:
		raw = t
	case string:
		raw = []byte(t)
	default:
		return fmt.Errorf("cannot scan %T into Document", src)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	*d = Document(m)
	return nil
}
