package fieldmap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alejandroruanova/rowloader/internal/core/domain"
	apperrors "github.com/alejandroruanova/rowloader/internal/pkg/errors"
)

// DefaultPlaceholder is the path segment replaced by a resolved collection index
const DefaultPlaceholder = "_"

// Lookup gives read access to the target entity's nested collections
type Lookup interface {
	Collection(path string) []domain.Document
}

// Mapped is a row after field mapping
type Mapped struct {
	// Data is keyed by resolved target path
	Data map[string]string
	// Keys maps each original column name to its resolved target path
	Keys map[string]string
}

// Reverse returns the resolved-path to original-column table
func (m Mapped) Reverse() map[string]string {
	out := make(map[string]string, len(m.Keys))
	for original, mapped := range m.Keys {
		out[mapped] = original
	}
	return out
}

// Restore re-keys Data by original column names
func (m Mapped) Restore() map[string]string {
	reverse := m.Reverse()
	out := make(map[string]string, len(m.Data))
	for key, value := range m.Data {
		if original, ok := reverse[key]; ok {
			out[original] = value
			continue
		}
		out[key] = value
	}
	return out
}

// MissingDataError reports a correlating field absent from the row
type MissingDataError struct {
	Field string
}

func (e *MissingDataError) Error() string {
	return "Data not present for " + e.Field
}

type target struct {
	path     string
	segments []string
	indexed  bool
}

// Map is a compiled field map
type Map struct {
	targets      map[string]target
	correlations map[string][]string
	placeholder  string
}

// Compile validates a field map. A placeholder segment must follow a
// collection segment that declares its correlating fields.
func Compile(fields map[string]string, correlations map[string][]string, placeholder string) (*Map, error) {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	m := &Map{
		targets:      make(map[string]target, len(fields)),
		correlations: make(map[string][]string, len(correlations)),
		placeholder:  placeholder,
	}
	for collection, fieldNames := range correlations {
		m.correlations[collection] = fieldNames
	}

	for column, path := range fields {
		t := target{path: path, segments: strings.Split(path, ".")}
		for i, segment := range t.segments {
			if segment != placeholder {
				continue
			}
			if i == 0 {
				return nil, apperrors.UnderscorePointer(path)
			}
			if len(m.correlations[t.segments[i-1]]) == 0 {
				return nil, apperrors.UnderscorePointer(t.segments[i-1])
			}
			t.indexed = true
		}
		m.targets[column] = t
	}

	return m, nil
}

// Placeholder returns the placeholder token
func (m *Map) Placeholder() string {
	return m.placeholder
}

// Target returns the configured path of a column
func (m *Map) Target(column string) (string, bool) {
	t, ok := m.targets[column]
	return t.path, ok
}

// Apply maps a row keyed by column names. Placeholder segments are resolved
// against the entity's current collections; a nil lookup resolves to 0.
func (m *Map) Apply(row map[string]string, lookup Lookup) (Mapped, error) {
	mapped := Mapped{
		Data: make(map[string]string, len(row)),
		Keys: make(map[string]string, len(row)),
	}

	for column, value := range row {
		key := column
		if t, ok := m.targets[column]; ok {
			key = t.path
			if t.indexed {
				resolved, err := m.resolve(t, row, lookup)
				if err != nil {
					return mapped, err
				}
				key = resolved
			}
		}
		mapped.Data[key] = value
		mapped.Keys[column] = key
	}

	return mapped, nil
}

// resolve replaces each placeholder with the index of the collection element
// whose correlating fields all equal the row's values, or with the
// collection length when none does.
func (m *Map) resolve(t target, row map[string]string, lookup Lookup) (string, error) {
	resolved := make([]string, 0, len(t.segments))

	for i, segment := range t.segments {
		if segment != m.placeholder {
			resolved = append(resolved, segment)
			continue
		}

		collectionPath := strings.Join(resolved, ".")
		collectionName := t.segments[i-1]
		fieldNames := m.correlations[collectionName]

		wanted := make(map[string]string, len(fieldNames))
		for _, field := range fieldNames {
			value, ok := m.correlationValue(row, t.segments[:i+1], field)
			if !ok {
				return "", &MissingDataError{Field: field}
			}
			wanted[field] = value
		}

		index := 0
		if lookup != nil {
			elements := lookup.Collection(collectionPath)
			index = len(elements)
			for idx, element := range elements {
				if correlates(element, fieldNames, wanted) {
					index = idx
					break
				}
			}
		}

		resolved = append(resolved, strconv.Itoa(index))
	}

	return strings.Join(resolved, "."), nil
}

// correlationValue finds the row value for a correlating field: the column
// mapped onto the same collection element's field, else a column of the
// same name.
func (m *Map) correlationValue(row map[string]string, prefix []string, field string) (string, bool) {
	wantedPath := strings.Join(append(append([]string{}, prefix...), field), ".")
	for column, t := range m.targets {
		if t.path == wantedPath {
			if value, ok := row[column]; ok {
				return value, true
			}
		}
	}
	value, ok := row[field]
	return value, ok
}

func correlates(element domain.Document, fieldNames []string, wanted map[string]string) bool {
	for _, field := range fieldNames {
		value, ok := element.Get(field)
		if !ok || Stringify(value) != wanted[field] {
			return false
		}
	}
	return true
}

// Stringify renders an entity value the way it would appear in a row cell
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
