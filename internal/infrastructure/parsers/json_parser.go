package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// JSONNormalizer parses JSON files in one of three shapes:
//
//	{"header": [...], "body": [[...], ...]}
//	[["h1", "h2"], ["v1", "v2"], ...]
//	[{"h1": "v1", "h2": "v2"}, ...]
type JSONNormalizer struct {
	config *ParserConfig
}

// NewJSONNormalizer creates a new JSON normalizer
func NewJSONNormalizer(config *ParserConfig) *JSONNormalizer {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONNormalizer{
		config: config,
	}
}

// Normalize decodes the document and disperses it by shape
func (p *JSONNormalizer) Normalize(ctx context.Context, raw []byte) (*Content, error) {
	if err := p.config.checkSize(raw); err != nil {
		return nil, err
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(text))
	decoder.UseNumber()

	doc, err := decodeOrdered(decoder)
	if err != nil {
		content := unsupported(p.Format())
		content.Errors = append(content.Errors, fmt.Sprintf("failed to decode JSON: %v", err))
		return content, nil
	}

	var header []interface{}
	var body []interface{}

	switch v := doc.(type) {
	case *orderedObject:
		// {header, body}
		h, okHeader := v.values["header"].([]interface{})
		b, okBody := v.values["body"].([]interface{})
		if !okHeader || !okBody {
			return unsupported(p.Format()), nil
		}
		header, body = h, b

	case []interface{}:
		if len(v) == 0 {
			return unsupported(p.Format()), nil
		}
		switch first := v[0].(type) {
		case []interface{}:
			// array dump: row 0 is the header
			header, body = first, v[1:]
		case *orderedObject:
			// object dump: keys of the first object are the header
			header = make([]interface{}, len(first.keys))
			for i, key := range first.keys {
				header[i] = key
			}
			body = make([]interface{}, 0, len(v))
			for _, item := range v {
				obj, ok := item.(*orderedObject)
				if !ok {
					return unsupported(p.Format()), nil
				}
				body = append(body, obj.project(first.keys))
			}
		default:
			return unsupported(p.Format()), nil
		}

	default:
		return unsupported(p.Format()), nil
	}

	return buildContent(ctx, p.Format(), header, body)
}

// Format returns the format name
func (p *JSONNormalizer) Format() string {
	return "json"
}

// SupportedFormats returns the file extensions this normalizer supports
func (p *JSONNormalizer) SupportedFormats() []string {
	return []string{".json"}
}

// buildContent converts decoded header/body values into sanitized rows
func buildContent(ctx context.Context, format string, header []interface{}, body []interface{}) (*Content, error) {
	content := &Content{
		Header: sanitize(cellStrings(header)),
		Rows:   make([]Row, 0, len(body)),
		Format: format,
	}

	for i, item := range body {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		content.TotalRows++

		values, ok := item.([]interface{})
		if !ok {
			// a scalar row is a single cell
			values = []interface{}{item}
		}

		cells := sanitize(cellStrings(values))
		if isBlankRow(cells) {
			content.SkippedRows++
			continue
		}

		content.Rows = append(content.Rows, Row{Line: i + 2, Cells: cells})
	}

	return content, nil
}

func cellStrings(values []interface{}) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = cellString(v)
	}
	return out
}

// cellString renders a decoded JSON value as a cell
func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		encoded, err := json.Marshal(plain(t))
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(encoded)
	}
}
