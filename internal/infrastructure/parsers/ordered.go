package parsers

import (
	"encoding/json"
	"fmt"
)

// orderedObject is a JSON object that remembers key order, which
// encoding/json maps do not.
type orderedObject struct {
	keys   []string
	values map[string]interface{}
}

// project returns the object's values in header order when the object has
// exactly the header's keys, otherwise its values in document order so a
// length mismatch surfaces when the row is matched against the header.
func (o *orderedObject) project(header []string) []interface{} {
	if len(o.keys) == len(header) {
		out := make([]interface{}, len(header))
		matched := true
		for i, key := range header {
			v, ok := o.values[key]
			if !ok {
				matched = false
				break
			}
			out[i] = v
		}
		if matched {
			return out
		}
	}

	out := make([]interface{}, len(o.keys))
	for i, key := range o.keys {
		out[i] = o.values[key]
	}
	return out
}

// decodeOrdered reads one JSON value, keeping object key order
func decodeOrdered(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := &orderedObject{values: make(map[string]interface{})}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is not a string", keyTok)
			}
			value, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			if _, seen := obj.values[key]; !seen {
				obj.keys = append(obj.keys, key)
			}
			obj.values[key] = value
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil

	case '[':
		arr := make([]interface{}, 0)
		for dec.More() {
			value, err := decodeOrdered(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, value)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}

	return nil, fmt.Errorf("unexpected delimiter %v", delim)
}

// plain converts ordered objects back into values encoding/json can marshal
func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case *orderedObject:
		out := make(map[string]interface{}, len(t.keys))
		for _, key := range t.keys {
			out[key] = plain(t.values[key])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}
