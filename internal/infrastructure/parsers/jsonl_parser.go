package parsers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// JSONLNormalizer parses JSONL/NDJSON files (newline-delimited JSON objects).
// The first object's keys form the header.
type JSONLNormalizer struct {
	config *ParserConfig
}

// NewJSONLNormalizer creates a new JSONL normalizer
func NewJSONLNormalizer(config *ParserConfig) *JSONLNormalizer {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &JSONLNormalizer{
		config: config,
	}
}

// Normalize reads the input line by line
func (p *JSONLNormalizer) Normalize(ctx context.Context, raw []byte) (*Content, error) {
	if err := p.config.checkSize(raw); err != nil {
		return nil, err
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(bytes.NewReader(text))
	// Set a larger buffer for potentially large JSON lines (max 1MB per line)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	content := &Content{
		Rows:   []Row{},
		Format: p.Format(),
	}
	var keys []string
	lineNo := 0

	for scanner.Scan() {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		decoder := json.NewDecoder(bytes.NewReader(line))
		decoder.UseNumber()
		value, err := decodeOrdered(decoder)
		obj, ok := value.(*orderedObject)
		if err != nil || !ok {
			// Skip malformed JSON lines but continue parsing
			content.TotalRows++
			content.SkippedRows++
			content.Errors = append(content.Errors, fmt.Sprintf("line %d is not a JSON object", lineNo))
			continue
		}

		if keys == nil {
			keys = obj.keys
			content.Header = sanitize(obj.keys)
		}

		content.TotalRows++
		cells := sanitize(cellStrings(obj.project(keys)))
		if isBlankRow(cells) {
			content.SkippedRows++
			continue
		}

		content.Rows = append(content.Rows, Row{Line: lineNo, Cells: cells})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading JSONL stream: %w", err)
	}

	if content.Header == nil {
		content.Header = []string{}
	}

	return content, nil
}

// Format returns the format name
func (p *JSONLNormalizer) Format() string {
	return "jsonl"
}

// SupportedFormats returns the file extensions this normalizer supports
func (p *JSONLNormalizer) SupportedFormats() []string {
	return []string{".jsonl", ".ndjson", ".jsonnl"}
}
